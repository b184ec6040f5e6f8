package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/metrics"
	"github.com/rohanmalik/merakistore-backend/pkg/outbox"
	"github.com/rohanmalik/merakistore-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Page is one cursor page of orders.
type Page struct {
	Orders     []models.Order
	NextCursor string
}

// Service exposes order reads and lifecycle transitions.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog *catalog.Repository
	events  eventEmitter
	metrics *metrics.OrderMetrics
}

// NewService builds an order service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, catalogRepo *catalog.Repository, events eventEmitter, orderMetrics *metrics.OrderMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: catalogRepo,
		events:  events,
		metrics: orderMetrics,
	}, nil
}

// List returns the user's orders, newest first, with a cursor for the
// next page when one exists.
func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	page := &Page{Orders: rows}
	if len(rows) > limit {
		page.Orders = rows[:limit]
		last := page.Orders[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

// Get loads one order scoped to its owner.
func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	return order, nil
}

// Cancel moves a pre-delivery order to CANCELLED, returns its stock,
// and voids the pending COD collection.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByIDAndUser(ctx, orderID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		catalogRepo := s.catalog.WithTx(tx)
		for _, line := range order.Lines {
			if err := catalogRepo.CreditStock(ctx, line.ProductID, line.VariantID, line.Quantity); err != nil {
				return err
			}
		}

		order.Status = enums.OrderStatusCancelled
		order.PaymentStatus = enums.PaymentStatusVoided
		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCancelled,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data:          map[string]any{"orderNumber": order.OrderNumber},
			Version:       1,
		}); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order")
	}
	s.metrics.IncCancelled()
	return cancelled, nil
}

// AdvanceStatus applies a fulfillment transition. Delivery marks the
// COD payment collected and emits the delivered event.
func (s *service) AdvanceStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "status transition disallowed").
				WithDetails(map[string]any{"from": order.Status, "to": next})
		}

		order.Status = next
		if next == enums.OrderStatusDelivered {
			order.PaymentStatus = enums.PaymentStatusCollected
		}
		if err := repo.Save(ctx, order); err != nil {
			return err
		}
		if next == enums.OrderStatusDelivered {
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.OutboxEventOrderDelivered,
				AggregateType: enums.OutboxAggregateOrder,
				AggregateID:   order.ID,
				Data:          map[string]any{"orderNumber": order.OrderNumber},
				Version:       1,
			}); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
	}
	return updated, nil
}

// NewOrderNumber produces a human-readable unique order reference.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("MK-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(suffix)))
}
