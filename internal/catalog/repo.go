package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	"github.com/rohanmalik/merakistore-backend/pkg/pagination"
)

// Repository exposes persistence operations for the product catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a product with its variants and colors.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Colors").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindActiveByID loads an active product with its variants and colors.
func (r *Repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Colors").
		Where("id = ? AND is_active = ?", id, true).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindActiveBySlug loads an active product by its URL slug.
func (r *Repository) FindActiveBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Colors").
		Where("slug = ? AND is_active = ?", slug, true).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindManyByIDs loads the given products keyed by id, with variants and colors.
func (r *Repository) FindManyByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	result := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		Preload("Colors").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		product := rows[i]
		result[product.ID] = &product
	}
	return result, nil
}

// ListActive returns a cursor page of active products, newest first.
func (r *Repository) ListActive(ctx context.Context, category string, params pagination.Params) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))
	if category != "" {
		query = query.Where("category = ?", category)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Product
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetStock reads the live stock count for a product or variant.
func (r *Repository) GetStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	var stock int
	var err error
	if variantID != nil {
		err = r.db.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", *variantID, productID).
			Pluck("stock_quantity", &stock).Error
	} else {
		err = r.db.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", productID).
			Pluck("stock_quantity", &stock).Error
	}
	return stock, err
}

// DebitStock decrements stock for a product or variant only when enough
// remains. Returns false without touching the row when stock is short.
func (r *Repository) DebitStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, errors.New("quantity must be positive")
	}
	var result *gorm.DB
	if variantID != nil {
		result = r.db.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ? AND stock_quantity >= ?", *variantID, productID, qty).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	} else {
		result = r.db.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND stock_quantity >= ?", productID, qty).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreditStock returns previously debited stock, used when an order is
// cancelled before delivery.
func (r *Repository) CreditStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if variantID != nil {
		return r.db.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", *variantID, productID).
			UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty)).Error
	}
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_quantity", gorm.Expr("stock_quantity + ?", qty)).Error
}
