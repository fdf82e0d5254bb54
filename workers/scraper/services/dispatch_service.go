package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
)

type JobRegistrar interface {
	RegisterJob(ctx context.Context, jobID string, ids []domain.Identity) error
	FailPending(ctx context.Context, jobID, message string) (int64, error)
}

const msgDispatchFailed = "job could not be dispatched"

// DispatchService registers a job and hands it to the broker.
type DispatchService struct {
	store    JobRegistrar
	liveness JobMarker
	sender   MessageSender
	queueURL string
	logger   logger.Logger
	newID    func() string
}

func NewDispatchService(store JobRegistrar, liveness JobMarker, sender MessageSender, queueURL string, l logger.Logger) *DispatchService {
	if l == nil {
		l = logger.NewNop()
	}
	return &DispatchService{
		store:    store,
		liveness: liveness,
		sender:   sender,
		queueURL: queueURL,
		logger:   l,
		newID:    uuid.NewString,
	}
}

// Submit validates the request, writes a pending row per identity and enqueues
// the job. The job is marked queued before its rows exist, so a status query
// never sees pending rows of an unknown job.
func (s *DispatchService) Submit(ctx context.Context, companyID string, identities []string) (domain.Job, error) {
	if err := domain.ValidateCompanyID(companyID); err != nil {
		return domain.Job{}, err
	}
	ids, err := domain.ParseIdentities(identities)
	if err != nil {
		return domain.Job{}, err
	}
	job := domain.Job{ID: s.newID(), CompanyID: companyID, Identities: ids}

	if err := s.liveness.MarkQueued(ctx, job.ID); err != nil {
		return domain.Job{}, err
	}
	if err := s.store.RegisterJob(ctx, job.ID, ids); err != nil {
		s.clear(ctx, job.ID)
		return domain.Job{}, err
	}

	msg := domain.JobMessage{
		Type:       domain.MsgTypeScrapeDocuments,
		JobID:      job.ID,
		CompanyID:  companyID,
		Identities: make([]string, len(ids)),
	}
	for i, id := range ids {
		msg.Identities[i] = id.String()
	}
	if err := s.sender.SendMessage(ctx, s.queueURL, msg); err != nil {
		if _, ferr := s.store.FailPending(context.WithoutCancel(ctx), job.ID, msgDispatchFailed); ferr != nil {
			s.logger.Error("failed to fail undispatched job", logger.String("job_id", job.ID), logger.Err(ferr))
		}
		s.clear(ctx, job.ID)
		return domain.Job{}, fmt.Errorf("failed to dispatch job %s: %w", job.ID, err)
	}

	s.logger.Info("job dispatched",
		logger.String("job_id", job.ID),
		logger.String("company_id", companyID),
		logger.Int("identities", len(ids)),
	)
	return job, nil
}

func (s *DispatchService) clear(ctx context.Context, jobID string) {
	if err := s.liveness.Clear(context.WithoutCancel(ctx), jobID); err != nil {
		s.logger.Warn("failed to clear job liveness", logger.String("job_id", jobID), logger.Err(err))
	}
}
