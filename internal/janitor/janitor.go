package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rohanmalik/merakistore-backend/pkg/logger"
	"github.com/rohanmalik/merakistore-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// Job is one maintenance task run on the janitor cadence.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Lock serializes janitor cycles across API replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a best-effort SETNX lock. The TTL bounds how long a
// crashed holder can block the next cycle.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = 2 * defaultInterval
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.store.SetNX(ctx, l.key, uuid.NewString(), l.ttl)
}

func (l *RedisLock) Release(ctx context.Context) error {
	return l.store.Del(ctx, l.key)
}

// ServiceParams configure the janitor loop.
type ServiceParams struct {
	Logger   *logger.Logger
	Lock     Lock
	Metrics  *metrics.JanitorMetrics
	Interval time.Duration
	Jobs     []Job
}

// Service runs the registered jobs on a fixed cadence, one cycle at a
// time across the whole deployment.
type Service struct {
	logg     *logger.Logger
	lock     Lock
	metrics  *metrics.JanitorMetrics
	interval time.Duration
	jobs     []Job
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if len(params.Jobs) == 0 {
		return nil, fmt.Errorf("at least one job required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		jobs:     params.Jobs,
	}, nil
}

// Run blocks until the context is canceled. The first cycle fires
// immediately so a fresh deployment does not wait a full interval.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "janitor cycle failed", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "janitor cycle failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire janitor lock: %w", err)
	}
	if !acquired {
		s.logg.Info(ctx, "janitor cycle held by another replica")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release janitor lock", err)
		}
	}()

	var errs []error
	for _, job := range s.jobs {
		if err := s.runJob(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return multierr.Combine(errs...)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), elapsed)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(job.Name())
		s.logg.Error(jobCtx, "janitor job failed", err)
		return err
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(jobCtx, "janitor job completed")
	return nil
}
