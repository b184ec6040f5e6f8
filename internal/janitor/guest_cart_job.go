package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

const guestCartJobName = "guest_cart_sweep"

type guestCartRepo interface {
	DeleteIdleGuestCarts(ctx context.Context, pattern string, cutoff time.Time) (int64, error)
}

// GuestCartJobParams configure the idle guest cart sweep.
type GuestCartJobParams struct {
	Logger *logger.Logger
	Repo   guestCartRepo
	// MaxIdle is how long a guest cart may go untouched before it is
	// swept. It should exceed the guest cookie TTL so a cart is never
	// deleted while a browser could still present its token.
	MaxIdle time.Duration
}

type guestCartJob struct {
	logg    *logger.Logger
	repo    guestCartRepo
	maxIdle time.Duration
}

// NewGuestCartJob prunes guest carts whose cookie has long expired.
// Cart lines go with the cart via the FK cascade.
func NewGuestCartJob(params GuestCartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.MaxIdle <= 0 {
		return nil, fmt.Errorf("max idle must be positive")
	}
	return &guestCartJob{
		logg:    params.Logger,
		repo:    params.Repo,
		maxIdle: params.MaxIdle,
	}, nil
}

func (j *guestCartJob) Name() string { return guestCartJobName }

func (j *guestCartJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.maxIdle)
	deleted, err := j.repo.DeleteIdleGuestCarts(ctx, identity.GuestKeyPattern(), cutoff)
	if err != nil {
		return fmt.Errorf("delete idle guest carts: %w", err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithField(ctx, "deleted", deleted), "swept idle guest carts")
	}
	return nil
}
