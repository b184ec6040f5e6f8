package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ProductColor is a named color option with its own image set. Key is
// the trimmed lowercase form of Name and is what cart lines reference.
type ProductColor struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string         `gorm:"column:name;not null"`
	Key       string         `gorm:"column:key;not null"`
	Images    pq.StringArray `gorm:"column:images;type:text[];not null;default:ARRAY[]::text[]"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
