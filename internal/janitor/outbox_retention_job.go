package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

const outboxRetentionJobName = "outbox_retention"

type outboxRetentionRepo interface {
	DeletePublishedBefore(cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the published event prune.
type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Repo   outboxRetentionRepo
	// Retention is how long published outbox rows are kept for audit
	// before they are pruned. Unpublished rows are never touched.
	Retention time.Duration
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	repo      outboxRetentionRepo
	retention time.Duration
}

// NewOutboxRetentionJob prunes outbox events that were published longer
// ago than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		repo:      params.Repo,
		retention: params.Retention,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return outboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("delete published outbox events: %w", err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "pruned published outbox events")
	}
	return nil
}
