package orders

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/outbox"
	"github.com/rohanmalik/merakistore-backend/pkg/pagination"
	"github.com/rohanmalik/merakistore-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL DEFAULT '',
  slug TEXT NOT NULL UNIQUE,
  title TEXT NOT NULL,
  description TEXT,
  brand TEXT,
  category TEXT NOT NULL,
  selling_price TEXT NOT NULL,
  mrp TEXT NOT NULL,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  has_variants INTEGER NOT NULL DEFAULT 0,
  feature_images TEXT NOT NULL DEFAULT '{}',
  gallery_images TEXT NOT NULL DEFAULT '{}',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  label TEXT NOT NULL,
  selling_price TEXT,
  mrp TEXT,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  image_url TEXT NOT NULL DEFAULT '',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  payment_status TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  mrp_total TEXT NOT NULL,
  savings TEXT NOT NULL,
  contact TEXT,
  shipping_address TEXT,
  placed_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_code TEXT NOT NULL DEFAULT 'NA',
  variant_id TEXT,
  color_key TEXT,
  color_name TEXT,
  title TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  mrp TEXT NOT NULL,
  line_total TEXT NOT NULL,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (g *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type recordingEmitter struct {
	events []outbox.DomainEvent
}

func (r *recordingEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type ordersFixture struct {
	svc    Service
	repo   *Repository
	db     *gorm.DB
	emit   *recordingEmitter
	userID uuid.UUID
}

func newOrdersFixture(t *testing.T) *ordersFixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	emit := &recordingEmitter{}
	svc, err := NewService(repo, &gormTxRunner{db: db}, catalog.NewRepository(db), emit, nil)
	require.NoError(t, err)
	return &ordersFixture{svc: svc, repo: repo, db: db, emit: emit, userID: uuid.New()}
}

func (f *ordersFixture) createOrder(t *testing.T, placedAt time.Time, lines ...models.OrderLine) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   NewOrderNumber(placedAt),
		UserID:        f.userID,
		Status:        enums.OrderStatusPlaced,
		PaymentMethod: enums.PaymentMethodCOD,
		PaymentStatus: enums.PaymentStatusPending,
		Subtotal:      decimal.RequireFromString("899.00"),
		MRPTotal:      decimal.RequireFromString("1299.00"),
		Savings:       decimal.RequireFromString("400.00"),
		Contact:       types.OrderContact{Name: "Asha Rao", Phone: "9876543210"},
		ShippingAddress: types.ShippingAddress{
			FullName:   "Asha Rao",
			Phone:      "9876543210",
			Line1:      "14 Lake View Road",
			City:       "Bengaluru",
			State:      "Karnataka",
			PostalCode: "560034",
			Country:    "IN",
		},
		Lines:         lines,
		PlacedAt:      placedAt,
		CreatedAt:     placedAt,
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *ordersFixture) createProduct(t *testing.T, slug string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:            uuid.New(),
		Slug:          slug,
		Title:         "Product " + slug,
		Category:      "apparel",
		SellingPrice:  decimal.RequireFromString("899.00"),
		MRP:           decimal.RequireFromString("1299.00"),
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newOrdersFixture(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.createOrder(t, base)
	f.createOrder(t, base.Add(time.Hour))
	newest := f.createOrder(t, base.Add(2*time.Hour))

	page, err := f.svc.List(context.Background(), f.userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, newest.ID, page.Orders[0].ID)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.List(context.Background(), f.userID, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Orders, 1)
	assert.Equal(t, base.Unix(), rest.Orders[0].CreatedAt.Unix())
	assert.Empty(t, rest.NextCursor)
}

func TestGetScopesToOwner(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, time.Now())

	_, err := f.svc.Get(context.Background(), uuid.New(), order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	found, err := f.svc.Get(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, found.OrderNumber)
}

func TestCancelRestocksAndVoidsPayment(t *testing.T) {
	f := newOrdersFixture(t)
	product := f.createProduct(t, "ord-cancel", 8)
	order := f.createOrder(t, time.Now(), models.OrderLine{
		ProductID: product.ID,
		Title:     product.Title,
		Quantity:  2,
		UnitPrice: decimal.RequireFromString("899.00"),
		MRP:       decimal.RequireFromString("1299.00"),
		LineTotal: decimal.RequireFromString("1798.00"),
	})

	cancelled, err := f.svc.Cancel(context.Background(), f.userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, enums.PaymentStatusVoided, cancelled.PaymentStatus)

	var stock int
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", product.ID).Pluck("stock_quantity", &stock).Error)
	assert.Equal(t, 10, stock, "cancelled quantities return to stock")

	require.Len(t, f.emit.events, 1)
	assert.Equal(t, "order.cancelled", string(f.emit.events[0].EventType))
}

func TestCancelRejectedAfterDelivery(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, time.Now())
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", enums.OrderStatusDelivered).Error)

	_, err := f.svc.Cancel(context.Background(), f.userID, order.ID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestAdvanceStatusWalksTheLifecycle(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, time.Now())

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	} {
		updated, err := f.svc.AdvanceStatus(context.Background(), order.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	var final models.Order
	require.NoError(t, f.db.First(&final, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusCollected, final.PaymentStatus, "delivery collects the COD payment")

	require.Len(t, f.emit.events, 1)
	assert.Equal(t, "order.delivered", string(f.emit.events[0].EventType))
}

func TestAdvanceStatusRejectsSkippedStates(t *testing.T) {
	f := newOrdersFixture(t)
	order := f.createOrder(t, time.Now())

	_, err := f.svc.AdvanceStatus(context.Background(), order.ID, enums.OrderStatusDelivered)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusPlaced, details["from"])
}

func TestNewOrderNumberFormat(t *testing.T) {
	number := NewOrderNumber(time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^MK-20260815-[0-9A-F]{8}$`), number)
}
