package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/address"
	"github.com/rohanmalik/merakistore-backend/internal/cart"
	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/internal/orders"
	"github.com/rohanmalik/merakistore-backend/internal/users"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/metrics"
	"github.com/rohanmalik/merakistore-backend/pkg/outbox"
	"github.com/rohanmalik/merakistore-backend/pkg/types"
)

const fallbackProductCode = "NA"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Summary is the pre-checkout review of the selected cart lines.
type Summary struct {
	Lines   []cart.LineView     `json:"lines"`
	Totals  cart.Totals         `json:"totals"`
	Address *models.UserAddress `json:"address,omitempty"`
	Payment enums.PaymentMethod `json:"paymentMethod"`
}

// ContactInput is the shopper-supplied contact for an order. Blank
// fields fall back to the user's profile.
type ContactInput struct {
	Name  string
	Phone string
	Email string
}

// PlaceInput captures a place-order request.
type PlaceInput struct {
	AddressID *uuid.UUID
	Contact   ContactInput
}

// Service runs checkout over the selected subset of the cart. Both the
// summary and the order placement treat the selection as one unit: any
// line failing revalidation fails the whole request.
type Service interface {
	GetSummary(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey) (*Summary, error)
	PlaceCodOrder(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey, input PlaceInput) (*models.Order, error)
}

// ServiceParams wires the checkout service dependencies.
type ServiceParams struct {
	CartRepo    *cart.Repository
	CatalogRepo *catalog.Repository
	OrdersRepo  *orders.Repository
	AddressRepo *address.Repository
	Addresses   address.Service
	UserRepo    *users.Repository
	TxRunner    txRunner
	Events      eventEmitter
	Metrics     *metrics.OrderMetrics
}

type service struct {
	cartRepo    *cart.Repository
	catalog     *catalog.Repository
	orders      *orders.Repository
	addressRepo *address.Repository
	addresses   address.Service
	users       *users.Repository
	tx          txRunner
	events      eventEmitter
	metrics     *metrics.OrderMetrics
}

// NewService builds a checkout service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.CatalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.AddressRepo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if params.Addresses == nil {
		return nil, fmt.Errorf("address service required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		cartRepo:    params.CartRepo,
		catalog:     params.CatalogRepo,
		orders:      params.OrdersRepo,
		addressRepo: params.AddressRepo,
		addresses:   params.Addresses,
		users:       params.UserRepo,
		tx:          params.TxRunner,
		events:      params.Events,
		metrics:     params.Metrics,
	}, nil
}

// GetSummary revalidates every selected line against the live catalog
// and totals the cart-line snapshots. A single short line fails the
// summary; pricing always comes from the snapshots the shopper saw.
func (s *service) GetSummary(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey) (*Summary, error) {
	_, selected, err := s.loadSelection(ctx, s.cartRepo, s.catalog, owner)
	if err != nil {
		return nil, err
	}

	defaultAddr, err := s.addresses.GetDefault(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Lines:   make([]cart.LineView, 0, len(selected)),
		Address: defaultAddr,
		Payment: enums.PaymentMethodCOD,
	}
	lines := make([]models.CartLine, 0, len(selected))
	for _, item := range selected {
		lines = append(lines, *item.line)
		summary.Lines = append(summary.Lines, cart.LineView{
			ID:         item.line.ID,
			ProductID:  item.line.ProductID,
			VariantID:  item.line.VariantID,
			ColorKey:   item.line.ColorKey,
			ColorName:  item.line.ColorName,
			Title:      item.line.TitleSnapshot,
			ImageURL:   item.line.ImageURL,
			Quantity:   item.line.Quantity,
			UnitPrice:  item.line.UnitPrice,
			MRP:        item.line.MRP,
			LineTotal:  item.line.UnitPrice.Mul(decimal.NewFromInt(int64(item.line.Quantity))),
			IsSelected: true,
			Available:  item.snap.Available,
			InStock:    true,
		})
	}
	summary.Totals = cart.ComputeTotals(lines)
	return summary, nil
}

// PlaceCodOrder atomically debits stock for every selected line, writes
// the order with the frozen cart snapshots, promotes the used address
// to default, removes the purchased lines, and queues the order.created
// event. Unselected lines stay in the cart.
func (s *service) PlaceCodOrder(ctx context.Context, userID uuid.UUID, owner identity.OwnerKey, input PlaceInput) (*models.Order, error) {
	shipTo, err := s.resolveAddress(ctx, userID, input.AddressID)
	if err != nil {
		return nil, err
	}
	contact, err := s.resolveContact(ctx, userID, input.Contact)
	if err != nil {
		return nil, err
	}

	var placed *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)
		addressRepo := s.addressRepo.WithTx(tx)

		cartRecord, selected, err := s.loadSelection(ctx, cartRepo, catalogRepo, owner)
		if err != nil {
			return err
		}

		now := time.Now()
		order := &models.Order{
			OrderNumber:   orders.NewOrderNumber(now),
			UserID:        userID,
			Status:        enums.OrderStatusPlaced,
			PaymentMethod: enums.PaymentMethodCOD,
			PaymentStatus: enums.PaymentStatusPending,
			Contact:       contact,
			ShippingAddress: types.ShippingAddress{
				FullName:   shipTo.FullName,
				Phone:      shipTo.Phone,
				Line1:      shipTo.Line1,
				Line2:      derefOrEmpty(shipTo.Line2),
				City:       shipTo.City,
				State:      shipTo.State,
				PostalCode: shipTo.PostalCode,
				Country:    shipTo.Country,
			},
			PlacedAt: now,
		}

		subtotal := decimal.Zero
		mrpTotal := decimal.Zero
		purchasedIDs := make([]uuid.UUID, 0, len(selected))
		for _, item := range selected {
			debited, err := catalogRepo.DebitStock(ctx, item.line.ProductID, item.line.VariantID, item.line.Quantity)
			if err != nil {
				return err
			}
			if !debited {
				available, stockErr := catalogRepo.GetStock(ctx, item.line.ProductID, item.line.VariantID)
				if stockErr != nil {
					available = 0
				}
				s.metrics.IncStockConflict()
				return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for a selected item").
					WithDetails(map[string]any{
						"lineId":    item.line.ID,
						"productId": item.line.ProductID,
						"available": available,
					})
			}

			// prices are copied from the cart line, never re-read from
			// the catalog: the shopper pays what the cart showed
			qty := decimal.NewFromInt(int64(item.line.Quantity))
			lineTotal := item.line.UnitPrice.Mul(qty)
			subtotal = subtotal.Add(lineTotal)
			mrpTotal = mrpTotal.Add(item.line.MRP.Mul(qty))
			code := item.snap.ProductCode
			if code == "" {
				code = fallbackProductCode
			}
			order.Lines = append(order.Lines, models.OrderLine{
				ProductID:   item.line.ProductID,
				ProductCode: code,
				VariantID:   item.line.VariantID,
				ColorKey:    item.line.ColorKey,
				ColorName:   item.line.ColorName,
				Title:       item.line.TitleSnapshot,
				ImageURL:    item.line.ImageURL,
				Quantity:    item.line.Quantity,
				UnitPrice:   item.line.UnitPrice,
				MRP:         item.line.MRP,
				LineTotal:   lineTotal,
			})
			purchasedIDs = append(purchasedIDs, item.line.ID)
		}

		order.Subtotal = subtotal
		order.MRPTotal = mrpTotal
		savings := mrpTotal.Sub(subtotal)
		if savings.IsNegative() {
			savings = decimal.Zero
		}
		order.Savings = savings

		if err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}
		// the address just used is the most likely to be reused
		if err := addressRepo.DemoteAll(ctx, userID); err != nil {
			return err
		}
		if err := addressRepo.Promote(ctx, userID, shipTo.ID); err != nil {
			return err
		}
		if err := cartRepo.DeleteLinesByIDs(ctx, cartRecord.ID, purchasedIDs); err != nil {
			return err
		}
		if _, err := cartRepo.BumpVersion(ctx, cartRecord.ID, cartRecord.Version); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCreated,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, OwnerKey: owner.String()},
			Data: map[string]any{
				"orderNumber": order.OrderNumber,
				"subtotal":    order.Subtotal,
				"lineCount":   len(order.Lines),
			},
			Version: 1,
		}); err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "placing order")
	}
	s.metrics.IncPlaced()
	return placed, nil
}

type selectedLine struct {
	line *models.CartLine
	snap *catalog.Snapshot
}

// loadSelection loads the cart and resolves a live snapshot for every
// selected line, rejecting the whole selection on the first failure.
func (s *service) loadSelection(ctx context.Context, cartRepo *cart.Repository, catalogRepo *catalog.Repository, owner identity.OwnerKey) (*models.Cart, []selectedLine, error) {
	cartRecord, err := cartRepo.FindByOwnerKey(ctx, owner.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no items selected for checkout")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}

	productIDs := make([]uuid.UUID, 0, len(cartRecord.Lines))
	for _, line := range cartRecord.Lines {
		if line.IsSelected {
			productIDs = append(productIDs, line.ProductID)
		}
	}
	if len(productIDs) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "no items selected for checkout")
	}

	products, err := catalogRepo.FindManyByIDs(ctx, productIDs)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}

	selected := make([]selectedLine, 0, len(productIDs))
	for i := range cartRecord.Lines {
		line := &cartRecord.Lines[i]
		if !line.IsSelected {
			continue
		}
		product, ok := products[line.ProductID]
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "a selected item is no longer available").
				WithDetails(map[string]any{"lineId": line.ID, "available": 0})
		}
		snap, err := catalog.Resolve(product, line.VariantID, line.ColorKey)
		if err != nil {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "a selected item is no longer available").
				WithDetails(map[string]any{"lineId": line.ID, "available": 0})
		}
		if line.Quantity > snap.Available {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for a selected item").
				WithDetails(map[string]any{
					"lineId":    line.ID,
					"productId": line.ProductID,
					"available": snap.Available,
				})
		}
		selected = append(selected, selectedLine{line: line, snap: snap})
	}
	return cartRecord, selected, nil
}

func (s *service) resolveAddress(ctx context.Context, userID uuid.UUID, addressID *uuid.UUID) (*models.UserAddress, error) {
	if addressID != nil {
		return s.addresses.GetByID(ctx, userID, *addressID)
	}
	shipTo, err := s.addresses.GetDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	if shipTo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a shipping address is required")
	}
	return shipTo, nil
}

// resolveContact merges the request contact with the user's profile.
// Name and phone must be present after the fallback.
func (s *service) resolveContact(ctx context.Context, userID uuid.UUID, input ContactInput) (types.OrderContact, error) {
	contact := types.OrderContact{
		Name:  strings.TrimSpace(input.Name),
		Phone: strings.TrimSpace(input.Phone),
		Email: strings.TrimSpace(input.Email),
	}
	if contact.Name == "" || contact.Phone == "" || contact.Email == "" {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return types.OrderContact{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading user")
			}
		} else {
			if contact.Name == "" {
				contact.Name = strings.TrimSpace(user.Name)
			}
			if contact.Phone == "" && user.Phone != nil {
				contact.Phone = strings.TrimSpace(*user.Phone)
			}
			if contact.Email == "" {
				contact.Email = strings.TrimSpace(user.Email)
			}
		}
	}
	if contact.Name == "" || contact.Phone == "" {
		return types.OrderContact{}, pkgerrors.New(pkgerrors.CodeValidation, "contact name and phone are required")
	}
	return contact, nil
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
