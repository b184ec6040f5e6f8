package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductVariant is a sellable size/pack option. Nil price fields fall
// back to the parent product's pricing.
type ProductVariant struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID     uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	Label         string           `gorm:"column:label;not null"`
	SellingPrice  *decimal.Decimal `gorm:"column:selling_price;type:numeric(12,2)"`
	MRP           *decimal.Decimal `gorm:"column:mrp;type:numeric(12,2)"`
	StockQuantity int              `gorm:"column:stock_quantity;not null;default:0"`
	ImageURL      *string          `gorm:"column:image_url"`
	IsActive      bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
