package services

import (
	"context"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/portal"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
)

// Consumer-side interfaces
type DocumentStore interface {
	RegisterJob(ctx context.Context, jobID string, ids []domain.Identity) error
	JobStatuses(ctx context.Context, jobID string) ([]domain.StatusRecord, error)
	StoredIdentities(ctx context.Context, ids []domain.Identity) (map[domain.Identity]bool, error)
	WithIdentityLock(ctx context.Context, id domain.Identity, fn func(tx repositories.DocumentTx) error) error
	SetStatus(ctx context.Context, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) (bool, error)
	FailPending(ctx context.Context, jobID, message string) (int64, error)
}

type DocumentReader interface {
	StoredIdentities(ctx context.Context, ids []domain.Identity) (map[domain.Identity]bool, error)
	Documents(ctx context.Context, ids []domain.Identity) ([]domain.StoredDocument, error)
}

type DownloadCursor interface {
	Next(ctx context.Context) (domain.Identity, bool, error)
	Skip() error
	Scrape(ctx context.Context) (*domain.DocumentDraft, error)
	Close()
}

type CursorOpener interface {
	OpenCursor(ctx context.Context, companyID string, wanted []domain.Identity) (DownloadCursor, error)
}

type IndexLister interface {
	ListAll(ctx context.Context, companyID string) ([]domain.DocumentRow, error)
}

type Heartbeater interface {
	Heartbeat(ctx context.Context, jobID string) error
	Clear(ctx context.Context, jobID string) error
}

type LivenessChecker interface {
	IsAlive(ctx context.Context, jobID string) (bool, error)
}

type JobMarker interface {
	MarkQueued(ctx context.Context, jobID string) error
	Clear(ctx context.Context, jobID string) error
}

type MessageSender interface {
	SendMessage(ctx context.Context, queueURL string, msg interface{}) error
}

type DocumentArchiver interface {
	ArchiveDocument(ctx context.Context, draft *domain.DocumentDraft) (string, error)
}

type DocumentCatalog interface {
	IndexDocument(ctx context.Context, doc domain.StoredDocument, location string) error
}

type JobStatusSink interface {
	UpdateJobStatus(ctx context.Context, jobID, companyID, status string) error
	UpdateJobSummary(ctx context.Context, summary domain.JobSummary, status, completedAt string) error
}

// PortalCursors adapts a portal client to CursorOpener.
type PortalCursors struct {
	Client *portal.Client
}

func (p PortalCursors) OpenCursor(ctx context.Context, companyID string, wanted []domain.Identity) (DownloadCursor, error) {
	c, err := p.Client.OpenCursor(ctx, companyID, wanted)
	if err != nil {
		return nil, err
	}
	return c, nil
}
