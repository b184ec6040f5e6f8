package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/rohanmalik/merakistore-backend/pkg/db"
	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
)

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
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

// FindByOwnerKey loads the cart for an owner, lines in insertion order.
func (r *Repository) FindByOwnerKey(ctx context.Context, ownerKey string) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("owner_key = ?", ownerKey).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreate returns the owner's cart, creating an empty one when none
// exists. A concurrent create loses the unique-index race and falls
// back to reading the winner's row.
func (r *Repository) GetOrCreate(ctx context.Context, ownerKey string) (*models.Cart, error) {
	cart, err := r.FindByOwnerKey(ctx, ownerKey)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := models.Cart{ID: uuid.New(), OwnerKey: ownerKey}
	if createErr := r.db.WithContext(ctx).Create(&fresh).Error; createErr != nil {
		if dbpkg.IsUniqueViolation(createErr, "idx_carts_owner_key") {
			return r.FindByOwnerKey(ctx, ownerKey)
		}
		return nil, createErr
	}
	return &fresh, nil
}

// BumpVersion advances the cart version only when the caller saw the
// current one. Returns false when another writer got there first.
func (r *Repository) BumpVersion(ctx context.Context, cartID uuid.UUID, expected int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cartID, expected).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreateLine inserts a new cart line.
func (r *Repository) CreateLine(ctx context.Context, line *models.CartLine) error {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(line).Error
}

// SaveLine persists all fields of an existing line.
func (r *Repository) SaveLine(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// DeleteLine removes a single line scoped to its cart.
func (r *Repository) DeleteLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, lineID).
		Delete(&models.CartLine{}).Error
}

// DeleteAllLines empties the cart.
func (r *Repository) DeleteAllLines(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartLine{}).Error
}

// DeleteLinesByIDs removes the given lines scoped to their cart.
func (r *Repository) DeleteLinesByIDs(ctx context.Context, cartID uuid.UUID, lineIDs []uuid.UUID) error {
	if len(lineIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND id IN ?", cartID, lineIDs).
		Delete(&models.CartLine{}).Error
}

// FindLineByID loads one line scoped to its cart.
func (r *Repository) FindLineByID(ctx context.Context, cartID, lineID uuid.UUID) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, lineID).
		First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// UpdateLineSelection flips the selection flag for one line.
func (r *Repository) UpdateLineSelection(ctx context.Context, cartID, lineID uuid.UUID, selected bool) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("cart_id = ? AND id = ?", cartID, lineID).
		Update("is_selected", selected)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateAllSelection flips the selection flag for every line in the cart.
func (r *Repository) UpdateAllSelection(ctx context.Context, cartID uuid.UUID, selected bool) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("cart_id = ?", cartID).
		Update("is_selected", selected).Error
}

// DeleteCart removes the cart row and, via FK cascade, its lines.
func (r *Repository) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", cartID).
		Delete(&models.Cart{}).Error
}

// DeleteIdleGuestCarts drops guest carts untouched since the cutoff.
// User carts are never swept; only guests lose theirs, and only after
// the cookie that could reach the cart has long expired.
func (r *Repository) DeleteIdleGuestCarts(ctx context.Context, pattern string, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("owner_key LIKE ?", pattern).
		Where("updated_at < ?", cutoff).
		Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}
