package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
	pkgerrors "github.com/rohanmalik/merakistore-backend/pkg/errors"
)

// Snapshot is the frozen view of a product option combination: the
// price, title and image a cart line or order line records.
type Snapshot struct {
	ProductID   uuid.UUID
	ProductCode string
	VariantID   *uuid.UUID
	ColorKey    *string
	ColorName   *string
	Title       string
	ImageURL    string
	UnitPrice   decimal.Decimal
	MRP         decimal.Decimal
	Available   int
}

// NormalizeColorKey trims and lowercases a raw color value. Empty or
// whitespace-only input means no color was chosen and yields nil, so
// "Red", " red " and "RED" all collapse onto the same merge key.
func NormalizeColorKey(raw *string) *string {
	if raw == nil {
		return nil
	}
	key := strings.ToLower(strings.TrimSpace(*raw))
	if key == "" {
		return nil
	}
	return &key
}

// Resolve computes the snapshot for the given option combination,
// validating that the variant and color exist on the product.
func Resolve(product *models.Product, variantID *uuid.UUID, colorKey *string) (*Snapshot, error) {
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is no longer available")
	}

	snap := &Snapshot{
		ProductID:   product.ID,
		ProductCode: product.Code,
		Title:       product.Title,
		UnitPrice:   product.SellingPrice,
		MRP:         product.MRP,
		Available:   product.StockQuantity,
	}

	var variant *models.ProductVariant
	if variantID != nil {
		for i := range product.Variants {
			if product.Variants[i].ID == *variantID {
				variant = &product.Variants[i]
				break
			}
		}
		if variant == nil || !variant.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to this product")
		}
		id := variant.ID
		snap.VariantID = &id
		snap.Available = variant.StockQuantity
		if variant.SellingPrice != nil {
			snap.UnitPrice = *variant.SellingPrice
		}
		if variant.MRP != nil {
			snap.MRP = *variant.MRP
		}
	} else if product.HasVariants {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "this product requires a variant selection")
	}

	var color *models.ProductColor
	if colorKey != nil {
		for i := range product.Colors {
			if product.Colors[i].Key == *colorKey {
				color = &product.Colors[i]
				break
			}
		}
		if color == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "color is not offered for this product")
		}
		key := color.Key
		name := color.Name
		snap.ColorKey = &key
		snap.ColorName = &name
	}

	snap.ImageURL = resolveImage(product, variant, color)
	return snap, nil
}

// image precedence: color gallery, then variant image, then the
// product's feature images, then its general gallery.
func resolveImage(product *models.Product, variant *models.ProductVariant, color *models.ProductColor) string {
	if color != nil && len(color.Images) > 0 {
		return color.Images[0]
	}
	if variant != nil && variant.ImageURL != nil && *variant.ImageURL != "" {
		return *variant.ImageURL
	}
	if len(product.FeatureImages) > 0 {
		return product.FeatureImages[0]
	}
	if len(product.GalleryImages) > 0 {
		return product.GalleryImages[0]
	}
	return ""
}
