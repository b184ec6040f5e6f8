package checkout

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/internal/address"
	"github.com/rohanmalik/merakistore-backend/internal/cart"
	"github.com/rohanmalik/merakistore-backend/internal/catalog"
	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/internal/orders"
	"github.com/rohanmalik/merakistore-backend/internal/users"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
	"github.com/rohanmalik/merakistore-backend/pkg/outbox"
)

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL DEFAULT 'CUSTOMER',
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
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
		`CREATE TABLE IF NOT EXISTS product_colors (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  key TEXT NOT NULL,
  images TEXT NOT NULL DEFAULT '{}',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  owner_key TEXT NOT NULL UNIQUE,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  variant_id TEXT,
  color_key TEXT,
  color_name TEXT,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  mrp TEXT NOT NULL,
  title_snapshot TEXT NOT NULL,
  image_url TEXT NOT NULL DEFAULT '',
  is_selected INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS user_addresses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  full_name TEXT NOT NULL,
  phone TEXT NOT NULL,
  line1 TEXT NOT NULL,
  line2 TEXT,
  city TEXT NOT NULL,
  state TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL DEFAULT 'IN',
  is_default INTEGER NOT NULL DEFAULT 0,
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

type checkoutFixture struct {
	svc    Service
	db     *gorm.DB
	emit   *recordingEmitter
	userID uuid.UUID
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	db := setupCheckoutTestDB(t)
	runner := &gormTxRunner{db: db}
	emit := &recordingEmitter{}
	addressRepo := address.NewRepository(db)

	addrSvc, err := address.NewService(addressRepo, runner)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		CartRepo:    cart.NewRepository(db),
		CatalogRepo: catalog.NewRepository(db),
		OrdersRepo:  orders.NewRepository(db),
		AddressRepo: addressRepo,
		Addresses:   addrSvc,
		UserRepo:    users.NewRepository(db),
		TxRunner:    runner,
		Events:      emit,
	})
	require.NoError(t, err)

	f := &checkoutFixture{svc: svc, db: db, emit: emit, userID: uuid.New()}
	phone := "9876543210"
	require.NoError(t, db.Create(&models.User{
		ID:           f.userID,
		Email:        "asha-" + f.userID.String()[:8] + "@example.com",
		PasswordHash: "x",
		Name:         "Asha Rao",
		Phone:        &phone,
		IsActive:     true,
	}).Error)
	return f
}

func (f *checkoutFixture) createProduct(t *testing.T, slug string, stock int, price, mrp string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:            uuid.New(),
		Code:          "CH-" + slug,
		Slug:          slug,
		Title:         "Product " + slug,
		Category:      "apparel",
		SellingPrice:  decimal.RequireFromString(price),
		MRP:           decimal.RequireFromString(mrp),
		StockQuantity: stock,
		FeatureImages: pq.StringArray{slug + ".jpg"},
		GalleryImages: pq.StringArray{},
		IsActive:      true,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *checkoutFixture) createCart(t *testing.T, owner identity.OwnerKey, lines ...*models.CartLine) *models.Cart {
	t.Helper()
	record := &models.Cart{ID: uuid.New(), OwnerKey: owner.String()}
	require.NoError(t, f.db.Create(record).Error)
	for _, line := range lines {
		line.ID = uuid.New()
		line.CartID = record.ID
		require.NoError(t, f.db.Create(line).Error)
	}
	return record
}

func (f *checkoutFixture) createAddress(t *testing.T, userID uuid.UUID, isDefault bool) *models.UserAddress {
	t.Helper()
	row := &models.UserAddress{
		ID:         uuid.New(),
		UserID:     userID,
		FullName:   "Asha Rao",
		Phone:      "9876543210",
		Line1:      "14 Lake View Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		PostalCode: "560034",
		Country:    "IN",
		IsDefault:  isDefault,
	}
	require.NoError(t, f.db.Create(row).Error)
	return row
}

// snapshotLine carries the prices captured at add-to-cart time, which
// deliberately differ from the live catalog prices in these tests.
func snapshotLine(product *models.Product, qty int, selected bool) *models.CartLine {
	return &models.CartLine{
		ProductID:     product.ID,
		Quantity:      qty,
		UnitPrice:     decimal.RequireFromString("1.00"),
		MRP:           decimal.RequireFromString("2.00"),
		TitleSnapshot: "snapshot title",
		ImageURL:      "snapshot.jpg",
		IsSelected:    selected,
	}
}

func TestPlaceCodOrderBuysSelectedLinesOnly(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-shirt", 10, "899.00", "1299.00")
	mug := f.createProduct(t, "co-mug", 5, "249.00", "249.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	cartRecord := f.createCart(t, owner,
		snapshotLine(shirt, 2, true),
		snapshotLine(mug, 1, false),
	)

	order, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.OrderNumber, "MK-"))
	assert.Equal(t, "PLACED", order.Status.String())
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "snapshot title", order.Lines[0].Title)
	assert.True(t, order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("1.00")),
		"order lines are priced from the cart snapshot, not the live catalog")
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, order.MRPTotal.Equal(decimal.RequireFromString("4.00")))
	assert.True(t, order.Savings.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, "14 Lake View Road", order.ShippingAddress.Line1)

	var stock int
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", shirt.ID).Pluck("stock_quantity", &stock).Error)
	assert.Equal(t, 8, stock)

	var remaining []models.CartLine
	require.NoError(t, f.db.Where("cart_id = ?", cartRecord.ID).Find(&remaining).Error)
	require.Len(t, remaining, 1, "unselected lines survive checkout")
	assert.Equal(t, mug.ID, remaining[0].ProductID)

	var version int64
	require.NoError(t, f.db.Model(&models.Cart{}).Where("id = ?", cartRecord.ID).Pluck("version", &version).Error)
	assert.Equal(t, int64(1), version)

	require.Len(t, f.emit.events, 1)
	assert.Equal(t, "order.created", string(f.emit.events[0].EventType))
	assert.Equal(t, order.ID, f.emit.events[0].AggregateID)
}

func TestPlaceCodOrderSnapshotsCodeAndColor(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-code", 10, "899.00", "1299.00")
	shirt.Colors = []models.ProductColor{
		{ID: uuid.New(), ProductID: shirt.ID, Name: "Navy", Key: "navy", Images: pq.StringArray{}},
	}
	require.NoError(t, f.db.Create(&shirt.Colors).Error)
	plain := f.createProduct(t, "co-nocode", 5, "249.00", "249.00")
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", plain.ID).Update("code", "").Error)

	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	navy := "navy"
	colored := snapshotLine(shirt, 1, true)
	colored.ColorKey = &navy
	f.createCart(t, owner, colored, snapshotLine(plain, 1, true))

	order, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	require.NoError(t, err)

	require.Len(t, order.Lines, 2)
	byProduct := map[uuid.UUID]models.OrderLine{}
	for _, line := range order.Lines {
		byProduct[line.ProductID] = line
	}
	require.NotNil(t, byProduct[shirt.ID].ColorKey)
	assert.Equal(t, "navy", *byProduct[shirt.ID].ColorKey)
	assert.Equal(t, "CH-co-code", byProduct[shirt.ID].ProductCode)
	assert.Equal(t, "NA", byProduct[plain.ID].ProductCode, "a product without a code falls back to NA")
}

func TestPlaceCodOrderPromotesUsedAddressToDefault(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-promote", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	oldDefault := f.createAddress(t, f.userID, true)
	used := f.createAddress(t, f.userID, false)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{AddressID: &used.ID})
	require.NoError(t, err)

	var usedFlag, oldFlag bool
	require.NoError(t, f.db.Model(&models.UserAddress{}).Where("id = ?", used.ID).Pluck("is_default", &usedFlag).Error)
	require.NoError(t, f.db.Model(&models.UserAddress{}).Where("id = ?", oldDefault.ID).Pluck("is_default", &oldFlag).Error)
	assert.True(t, usedFlag, "the address used for the order becomes the default")
	assert.False(t, oldFlag, "the previous default is demoted")
}

func TestPlaceCodOrderSnapshotsContact(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-contact", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))

	order, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{
		Contact: ContactInput{Name: "Ravi Rao", Phone: "9000000001", Email: "ravi@example.com"},
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, "Ravi Rao", stored.Contact.Name)
	assert.Equal(t, "9000000001", stored.Contact.Phone)
	assert.Equal(t, "ravi@example.com", stored.Contact.Email)
}

func TestPlaceCodOrderContactFallsBackToProfile(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-profile", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))

	order, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	require.NoError(t, err)

	assert.Equal(t, "Asha Rao", order.Contact.Name)
	assert.Equal(t, "9876543210", order.Contact.Phone)
}

func TestPlaceCodOrderRequiresContactPhone(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-nophone", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.userID).Update("phone", nil).Error)

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestPlaceCodOrderRollsBackWhenAnyLineIsShort(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-atomic", 3, "500.00", "600.00")
	shirt.Colors = []models.ProductColor{
		{ID: uuid.New(), ProductID: shirt.ID, Name: "Red", Key: "red", Images: pq.StringArray{}},
		{ID: uuid.New(), ProductID: shirt.ID, Name: "Blue", Key: "blue", Images: pq.StringArray{}},
	}
	require.NoError(t, f.db.Create(&shirt.Colors).Error)
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)

	// Two lines drawing from the same pool. Each passes the per-line
	// precheck against stock 3, but the second debit comes up short.
	red, blue := "red", "blue"
	redLine := snapshotLine(shirt, 2, true)
	redLine.ColorKey = &red
	blueLine := snapshotLine(shirt, 2, true)
	blueLine.ColorKey = &blue
	cartRecord := f.createCart(t, owner, redLine, blueLine)

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["available"])

	var stock int
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", shirt.ID).Pluck("stock_quantity", &stock).Error)
	assert.Equal(t, 3, stock, "partial debits roll back")

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Where("user_id = ?", f.userID).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	var remaining int64
	require.NoError(t, f.db.Model(&models.CartLine{}).Where("cart_id = ?", cartRecord.ID).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining, "the cart is untouched on conflict")
}

func TestPlaceCodOrderRejectsEmptySelection(t *testing.T) {
	f := newCheckoutFixture(t)
	mug := f.createProduct(t, "co-unsel", 5, "249.00", "249.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	f.createCart(t, owner, snapshotLine(mug, 1, false))

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestPlaceCodOrderRequiresAnAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-noaddr", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestPlaceCodOrderScopesExplicitAddressToUser(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-foreign", 5, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createCart(t, owner, snapshotLine(shirt, 1, true))
	foreign := f.createAddress(t, uuid.New(), true)

	_, err := f.svc.PlaceCodOrder(context.Background(), f.userID, owner, PlaceInput{AddressID: &foreign.ID})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestGetSummaryUsesCartSnapshotPricing(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-summary", 10, "799.00", "1299.00")
	mug := f.createProduct(t, "co-summary-mug", 5, "249.00", "249.00")
	owner := identity.ForUser(f.userID)
	addr := f.createAddress(t, f.userID, true)
	f.createCart(t, owner,
		snapshotLine(shirt, 2, true),
		snapshotLine(mug, 1, false),
	)

	summary, err := f.svc.GetSummary(context.Background(), f.userID, owner)
	require.NoError(t, err)

	require.Len(t, summary.Lines, 1, "only selected lines appear in the summary")
	assert.True(t, summary.Lines[0].UnitPrice.Equal(decimal.RequireFromString("1.00")),
		"summary pricing comes from the cart snapshot, not the live catalog")
	assert.Equal(t, 10, summary.Lines[0].Available, "availability is live")
	assert.True(t, summary.Totals.Subtotal.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, 2, summary.Totals.SelectedCount)
	require.NotNil(t, summary.Address)
	assert.Equal(t, addr.ID, summary.Address.ID)
	assert.Equal(t, "COD", string(summary.Payment))
}

func TestGetSummaryConflictsOnShortStock(t *testing.T) {
	f := newCheckoutFixture(t)
	shirt := f.createProduct(t, "co-short", 1, "899.00", "1299.00")
	owner := identity.ForUser(f.userID)
	f.createAddress(t, f.userID, true)
	f.createCart(t, owner, snapshotLine(shirt, 4, true))

	_, err := f.svc.GetSummary(context.Background(), f.userID, owner)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["available"])
}
