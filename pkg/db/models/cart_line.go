package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is one merge-key slot in a cart: the same product, variant
// and color key always land on the same row. Price, title and image are
// snapshots refreshed whenever the line is touched, never silently.
type CartLine struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CartID        uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID     *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ColorKey      *string         `gorm:"column:color_key"`
	ColorName     *string         `gorm:"column:color_name"`
	Quantity      int             `gorm:"column:quantity;not null"`
	UnitPrice     decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	MRP           decimal.Decimal `gorm:"column:mrp;type:numeric(12,2);not null"`
	TitleSnapshot string          `gorm:"column:title_snapshot;not null"`
	ImageURL      string          `gorm:"column:image_url;not null;default:''"`
	IsSelected    bool            `gorm:"column:is_selected;not null;default:true"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
