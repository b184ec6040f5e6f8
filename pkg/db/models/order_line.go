package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine freezes one cart line at placement time. ProductCode keeps
// the merchandising reference even if the product row is later removed.
type OrderLine struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductCode string          `gorm:"column:product_code;not null;default:'NA'"`
	VariantID   *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ColorKey    *string         `gorm:"column:color_key"`
	ColorName   *string         `gorm:"column:color_name"`
	Title       string          `gorm:"column:title;not null"`
	ImageURL    string          `gorm:"column:image_url;not null;default:''"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	MRP         decimal.Decimal `gorm:"column:mrp;type:numeric(12,2);not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}
