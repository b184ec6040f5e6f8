package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
)

// Repository exposes persistence operations for saved addresses.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an address repository bound to the provided DB.
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

// ListByUser returns the user's addresses, default first, newest next.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var rows []models.UserAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// FindByID loads one address scoped to its owner.
func (r *Repository) FindByID(ctx context.Context, userID, id uuid.UUID) (*models.UserAddress, error) {
	var row models.UserAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindDefault returns the user's default address, or gorm.ErrRecordNotFound.
func (r *Repository) FindDefault(ctx context.Context, userID uuid.UUID) (*models.UserAddress, error) {
	var row models.UserAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new address.
func (r *Repository) Create(ctx context.Context, row *models.UserAddress) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// Save persists all fields of an existing address.
func (r *Repository) Save(ctx context.Context, row *models.UserAddress) error {
	return r.db.WithContext(ctx).Save(row).Error
}

// Delete removes an address scoped to its owner. Returns the number of
// rows removed.
func (r *Repository) Delete(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&models.UserAddress{})
	return result.RowsAffected, result.Error
}

// DemoteAll clears the default flag on every address of the user.
func (r *Repository) DemoteAll(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}

// Promote marks one address as the default.
func (r *Repository) Promote(ctx context.Context, userID, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("is_default", true).Error
}

// CountByUser returns how many addresses the user has saved.
func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserAddress{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
