package services

import (
	"context"
	"fmt"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/logger"
)

type StatusStore interface {
	JobStatuses(ctx context.Context, jobID string) ([]domain.StatusRecord, error)
	FailPending(ctx context.Context, jobID, message string) (int64, error)
}

// StatusService answers job status queries. Pending rows of a job the liveness
// oracle no longer knows are failed before they are reported.
type StatusService struct {
	store    StatusStore
	liveness LivenessChecker
	logger   logger.Logger
}

func NewStatusService(store StatusStore, liveness LivenessChecker, l logger.Logger) *StatusService {
	if l == nil {
		l = logger.NewNop()
	}
	return &StatusService{store: store, liveness: liveness, logger: l}
}

func (s *StatusService) JobStatus(ctx context.Context, jobID string) ([]domain.StatusRecord, error) {
	records, err := s.store.JobStatuses(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.Errorf(domain.KindEntityNotFound, "job %s not found", jobID)
	}
	if !hasPending(records) {
		return records, nil
	}

	alive, err := s.liveness.IsAlive(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to check liveness of job %s: %w", jobID, err)
	}
	if alive {
		return records, nil
	}

	n, err := s.store.FailPending(ctx, jobID, domain.MsgJobEndedIncomplete)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("reconciled stale job", logger.String("job_id", jobID), logger.Int64("failed", n))
	return s.store.JobStatuses(ctx, jobID)
}

func hasPending(records []domain.StatusRecord) bool {
	for _, r := range records {
		if r.Status == domain.StatusPending {
			return true
		}
	}
	return false
}
