package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohanmalik/merakistore-backend/pkg/db/models"
)

// LineView is a cart line enriched with live availability.
type LineView struct {
	ID         uuid.UUID       `json:"id"`
	ProductID  uuid.UUID       `json:"productId"`
	VariantID  *uuid.UUID      `json:"variantId,omitempty"`
	ColorKey   *string         `json:"colorKey,omitempty"`
	ColorName  *string         `json:"colorName,omitempty"`
	Title      string          `json:"title"`
	ImageURL   string          `json:"imageUrl"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	MRP        decimal.Decimal `json:"mrp"`
	LineTotal  decimal.Decimal `json:"lineTotal"`
	IsSelected bool            `json:"isSelected"`
	Available  int             `json:"available"`
	InStock    bool            `json:"inStock"`
}

// Totals aggregates the selected lines of a cart.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	MRPTotal      decimal.Decimal `json:"mrpTotal"`
	Savings       decimal.Decimal `json:"savings"`
	SelectedCount int             `json:"selectedCount"`
	ItemCount     int             `json:"itemCount"`
}

// View is the full cart payload returned to clients.
type View struct {
	ID       uuid.UUID  `json:"id"`
	OwnerKey string     `json:"ownerKey"`
	Lines    []LineView `json:"lines"`
	Totals   Totals     `json:"totals"`
}

// ComputeTotals sums the selected lines. Savings clamp at zero so a
// selling price above MRP never produces negative savings.
func ComputeTotals(lines []models.CartLine) Totals {
	totals := Totals{
		Subtotal: decimal.Zero,
		MRPTotal: decimal.Zero,
		Savings:  decimal.Zero,
	}
	for _, line := range lines {
		totals.ItemCount += line.Quantity
		if !line.IsSelected {
			continue
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		totals.Subtotal = totals.Subtotal.Add(line.UnitPrice.Mul(qty))
		totals.MRPTotal = totals.MRPTotal.Add(line.MRP.Mul(qty))
		totals.SelectedCount += line.Quantity
	}
	savings := totals.MRPTotal.Sub(totals.Subtotal)
	if savings.IsPositive() {
		totals.Savings = savings
	}
	return totals
}
