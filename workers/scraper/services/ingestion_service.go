package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/repositories"
)

// IngestionService resolves every wanted identity of a job to exactly one
// terminal status row, fetching from the portal only what is not stored yet.
type IngestionService struct {
	store          DocumentStore
	cursors        CursorOpener
	liveness       Heartbeater
	heartbeatEvery time.Duration
	archive        DocumentArchiver
	catalog        DocumentCatalog
	jobStatus      JobStatusSink
	logger         logger.Logger
	now            func() time.Time
}

type IngestionOption func(*IngestionService)

func WithDocumentStore(s DocumentStore) IngestionOption {
	return func(svc *IngestionService) { svc.store = s }
}

func WithCursorOpener(c CursorOpener) IngestionOption {
	return func(svc *IngestionService) { svc.cursors = c }
}

// WithHeartbeat refreshes the job's liveness entry every interval while it runs.
func WithHeartbeat(h Heartbeater, interval time.Duration) IngestionOption {
	return func(svc *IngestionService) {
		svc.liveness = h
		svc.heartbeatEvery = interval
	}
}

func WithArchive(a DocumentArchiver) IngestionOption {
	return func(svc *IngestionService) { svc.archive = a }
}

func WithCatalog(c DocumentCatalog) IngestionOption {
	return func(svc *IngestionService) { svc.catalog = c }
}

func WithJobStatusSink(s JobStatusSink) IngestionOption {
	return func(svc *IngestionService) { svc.jobStatus = s }
}

func WithLogger(l logger.Logger) IngestionOption {
	return func(svc *IngestionService) { svc.logger = l }
}

func NewIngestionService(opts ...IngestionOption) *IngestionService {
	svc := &IngestionService{
		logger: logger.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type outcome int

const (
	outcomeAlreadyStored outcome = iota
	outcomeStored
	outcomeStoredByOther
	outcomeFailed
)

// Run processes job. Identities whose rows are already terminal, from an earlier
// delivery of the same job, are left untouched. The returned error is non-nil
// only when the job was aborted; its pending rows have been failed by then.
func (s *IngestionService) Run(ctx context.Context, job domain.Job) (domain.JobSummary, error) {
	summary := domain.JobSummary{JobID: job.ID}
	log := s.logger.With(logger.String("job_id", job.ID), logger.String("company_id", job.CompanyID))
	log.Info("job started", logger.Int("identities", len(job.Identities)))

	if s.jobStatus != nil {
		if err := s.jobStatus.UpdateJobStatus(ctx, job.ID, job.CompanyID, domain.JobStatusRunning); err != nil {
			log.Warn("failed to publish job status", logger.Err(err))
		}
	}
	stop := s.startHeartbeat(ctx, job.ID, log)
	defer stop()

	err := s.run(ctx, job, &summary, log)
	if err != nil {
		s.abort(ctx, job.ID, err, &summary, log)
	}
	s.finish(ctx, job.ID, &summary, log)
	s.publishSummary(ctx, summary, log)

	log.Info("job finished",
		logger.Int("already_stored", summary.AlreadyStored),
		logger.Int("stored", summary.Stored),
		logger.Int("stored_by_other", summary.StoredByOther),
		logger.Int("failed", summary.Failed),
		logger.Int("not_found", summary.NotFound),
		logger.Bool("aborted", summary.Aborted),
	)
	if err != nil {
		return summary, fmt.Errorf("job %s aborted: %w", job.ID, err)
	}
	return summary, nil
}

func (s *IngestionService) run(ctx context.Context, job domain.Job, summary *domain.JobSummary, log logger.Logger) error {
	wanted := uniqueIdentities(job.Identities)
	if err := s.store.RegisterJob(ctx, job.ID, wanted); err != nil {
		return err
	}
	pending, err := s.pendingIdentities(ctx, job.ID, wanted)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info("no pending identities left")
		return nil
	}

	stored, err := s.store.StoredIdentities(ctx, pending)
	if err != nil {
		return err
	}
	var missing []domain.Identity
	for _, id := range pending {
		if !stored[id] {
			missing = append(missing, id)
			continue
		}
		if err := s.setStatus(ctx, job.ID, id, domain.StatusFinished, domain.MsgAlreadyStored); err != nil {
			return err
		}
		summary.AlreadyStored++
		log.Debug("document already stored", logger.String("identity", id.Short()))
	}
	if len(missing) == 0 {
		return nil
	}

	cursor, err := s.cursors.OpenCursor(ctx, job.CompanyID, missing)
	if err != nil {
		return err
	}
	defer cursor.Close()

	remaining := make(map[domain.Identity]struct{}, len(missing))
	for _, id := range missing {
		remaining[id] = struct{}{}
	}
	for len(remaining) > 0 {
		id, ok, err := cursor.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, want := remaining[id]; !want {
			if err := cursor.Skip(); err != nil {
				return err
			}
			continue
		}
		delete(remaining, id)

		result, draft, err := s.resolve(ctx, job.ID, id, cursor, log)
		if err != nil {
			return err
		}
		switch result {
		case outcomeAlreadyStored:
			summary.AlreadyStored++
		case outcomeStored:
			summary.Stored++
			s.publishDocument(ctx, draft, log)
		case outcomeStoredByOther:
			summary.StoredByOther++
		case outcomeFailed:
			summary.Failed++
		}
	}

	for _, id := range missing {
		if _, left := remaining[id]; !left {
			continue
		}
		if err := s.setStatus(ctx, job.ID, id, domain.StatusFailed, domain.MsgNotFoundInRegistry); err != nil {
			return err
		}
		summary.NotFound++
		log.Debug("document not found in registry", logger.String("identity", id.Short()))
	}
	return nil
}

// resolve handles one surfaced identity under its advisory lock: re-check the
// store, scrape, insert, and write the status in the same transaction.
func (s *IngestionService) resolve(ctx context.Context, jobID string, id domain.Identity, cursor DownloadCursor, log logger.Logger) (outcome, *domain.DocumentDraft, error) {
	var (
		result    outcome
		draft     *domain.DocumentDraft
		insertErr error
	)
	short := logger.String("identity", id.Short())

	err := s.store.WithIdentityLock(ctx, id, func(tx repositories.DocumentTx) error {
		exists, err := tx.DocumentExists(id)
		if err != nil {
			return err
		}
		if exists {
			if err := cursor.Skip(); err != nil {
				return err
			}
			result = outcomeAlreadyStored
			_, err := tx.SetStatus(jobID, id, domain.StatusFinished, domain.MsgAlreadyStored)
			return err
		}

		d, scrapeErr := cursor.Scrape(ctx)
		if scrapeErr != nil {
			if domain.KindOf(scrapeErr).AbortsJob() {
				return scrapeErr
			}
			log.Warn("failed to scrape document", short, logger.Err(scrapeErr))
			result = outcomeFailed
			_, err := tx.SetStatus(jobID, id, domain.StatusFailed, domain.Summarize(scrapeErr))
			return err
		}

		inserted, err := tx.InsertDocument(d)
		if err != nil {
			insertErr = err
			return err
		}
		if !inserted {
			result = outcomeStoredByOther
			_, err := tx.SetStatus(jobID, id, domain.StatusFinished, domain.MsgStoredByOtherJob)
			return err
		}
		result, draft = outcomeStored, d
		_, err = tx.SetStatus(jobID, id, domain.StatusFinished, domain.MsgStored)
		return err
	})
	if err == nil {
		log.Debug("document resolved", short, logger.Int("outcome", int(result)))
		return result, draft, nil
	}
	if insertErr == nil {
		return 0, nil, err
	}

	// The insert rolled the transaction back, so the status is written on its own.
	switch domain.KindOf(insertErr) {
	case domain.KindStorageConflict:
		log.Warn("document stored concurrently", short)
		return outcomeStoredByOther, nil, s.setStatus(ctx, jobID, id, domain.StatusFinished, domain.MsgStoredByOtherJob)
	case domain.KindStorageIntegrityViolation:
		log.Warn("document rejected by store", short, logger.Err(insertErr))
		return outcomeFailed, nil, s.setStatus(ctx, jobID, id, domain.StatusFailed, domain.Summarize(insertErr))
	default:
		return 0, nil, insertErr
	}
}

func (s *IngestionService) pendingIdentities(ctx context.Context, jobID string, wanted []domain.Identity) ([]domain.Identity, error) {
	records, err := s.store.JobStatuses(ctx, jobID)
	if err != nil {
		return nil, err
	}
	terminal := make(map[domain.Identity]bool, len(records))
	for _, r := range records {
		if r.Status.Terminal() {
			terminal[r.Identity] = true
		}
	}
	pending := make([]domain.Identity, 0, len(wanted))
	for _, id := range wanted {
		if !terminal[id] {
			pending = append(pending, id)
		}
	}
	return pending, nil
}

func (s *IngestionService) setStatus(ctx context.Context, jobID string, id domain.Identity, status domain.ScrapingStatus, message string) error {
	_, err := s.store.SetStatus(ctx, jobID, id, status, message)
	return err
}

// abort fails every row of the job still pending with the classified reason.
func (s *IngestionService) abort(ctx context.Context, jobID string, cause error, summary *domain.JobSummary, log logger.Logger) {
	reason := domain.Summarize(cause)
	summary.Aborted = true
	summary.AbortReason = reason
	log.Error("job aborted", logger.String("reason", reason), logger.Err(cause))

	n, err := s.store.FailPending(context.WithoutCancel(ctx), jobID, domain.MsgJobAbortedPrefix+reason)
	if err != nil {
		log.Error("failed to fail pending rows", logger.Err(err))
		return
	}
	summary.Failed += int(n)
}

// finish guarantees no row of the job is left pending on exit.
func (s *IngestionService) finish(ctx context.Context, jobID string, summary *domain.JobSummary, log logger.Logger) {
	n, err := s.store.FailPending(context.WithoutCancel(ctx), jobID, domain.MsgJobEndedIncomplete)
	if err != nil {
		log.Error("failed to reconcile pending rows", logger.Err(err))
		return
	}
	if n > 0 {
		log.Warn("pending rows left after run", logger.Int64("count", n))
		summary.Failed += int(n)
	}
}

func (s *IngestionService) publishDocument(ctx context.Context, draft *domain.DocumentDraft, log logger.Logger) {
	if draft == nil {
		return
	}
	short := logger.String("identity", draft.Identity.Short())
	var location string
	if s.archive != nil {
		loc, err := s.archive.ArchiveDocument(ctx, draft)
		if err != nil {
			log.Warn("failed to archive document", short, logger.Err(err))
		}
		location = loc
	}
	if s.catalog != nil {
		doc := domain.StoredDocument{
			Identity:      draft.Identity,
			CompanyID:     draft.CompanyID,
			Type:          draft.Type,
			Name:          draft.Name,
			PeriodFrom:    draft.PeriodFrom,
			PeriodTo:      draft.PeriodTo,
			SavedFileName: draft.SavedFileName,
			FileExtension: draft.FileExtension,
			CreatedAt:     s.now(),
		}
		if err := s.catalog.IndexDocument(ctx, doc, location); err != nil {
			log.Warn("failed to catalog document", short, logger.Err(err))
		}
	}
}

func (s *IngestionService) publishSummary(ctx context.Context, summary domain.JobSummary, log logger.Logger) {
	if s.jobStatus == nil {
		return
	}
	status := domain.JobStatusCompleted
	if summary.Aborted {
		status = domain.JobStatusFailed
	}
	completedAt := s.now().UTC().Format(time.RFC3339)
	if err := s.jobStatus.UpdateJobSummary(context.WithoutCancel(ctx), summary, status, completedAt); err != nil {
		log.Warn("failed to publish job summary", logger.Err(err))
	}
}

// startHeartbeat beats once, then every heartbeatEvery until the returned stop
// function is called. stop clears the liveness entry.
func (s *IngestionService) startHeartbeat(ctx context.Context, jobID string, log logger.Logger) func() {
	if s.liveness == nil {
		return func() {}
	}
	beat := func() {
		if err := s.liveness.Heartbeat(ctx, jobID); err != nil {
			log.Warn("failed to refresh job liveness", logger.Err(err))
		}
	}
	beat()

	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if s.heartbeatEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(s.heartbeatEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					beat()
				case <-hbCtx.Done():
					return
				}
			}
		}()
	}

	return func() {
		cancel()
		wg.Wait()
		if err := s.liveness.Clear(context.WithoutCancel(ctx), jobID); err != nil {
			log.Warn("failed to clear job liveness", logger.Err(err))
		}
	}
}

func uniqueIdentities(ids []domain.Identity) []domain.Identity {
	seen := make(map[domain.Identity]struct{}, len(ids))
	out := make([]domain.Identity, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
