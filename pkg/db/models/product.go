package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is the canonical catalog listing. Code is the merchandising
// reference (e.g. "CH000001") copied onto order lines. When HasVariants
// is false the stock and pricing on the product row are authoritative;
// otherwise the variant rows carry them.
type Product struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code          string           `gorm:"column:code;not null;default:''"`
	Slug          string           `gorm:"column:slug;not null;uniqueIndex"`
	Title         string           `gorm:"column:title;not null"`
	Description   *string          `gorm:"column:description"`
	Brand         *string          `gorm:"column:brand"`
	Category      string           `gorm:"column:category;not null;index"`
	SellingPrice  decimal.Decimal  `gorm:"column:selling_price;type:numeric(12,2);not null"`
	MRP           decimal.Decimal  `gorm:"column:mrp;type:numeric(12,2);not null"`
	StockQuantity int              `gorm:"column:stock_quantity;not null;default:0"`
	HasVariants   bool             `gorm:"column:has_variants;not null;default:false"`
	FeatureImages pq.StringArray   `gorm:"column:feature_images;type:text[];not null;default:ARRAY[]::text[]"`
	GalleryImages pq.StringArray   `gorm:"column:gallery_images;type:text[];not null;default:ARRAY[]::text[]"`
	IsActive      bool             `gorm:"column:is_active;not null;default:true"`
	Variants      []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Colors        []ProductColor   `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
