package models

import (
	"time"

	"github.com/google/uuid"
)

// Cart is the single open cart for an owner key. Version guards
// concurrent mutation: every write re-reads and bumps it.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerKey  string     `gorm:"column:owner_key;not null;uniqueIndex:idx_carts_owner_key"`
	Version   int64      `gorm:"column:version;not null;default:0"`
	Lines     []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
