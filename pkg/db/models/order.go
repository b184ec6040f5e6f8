package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rohanmalik/merakistore-backend/pkg/enums"
	"github.com/rohanmalik/merakistore-backend/pkg/types"
)

// Order is an immutable record of a completed checkout. Line pricing,
// the contact and the shipping address are frozen at placement time.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus     `gorm:"column:status;not null;default:'PLACED'"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;not null;default:'PENDING'"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	MRPTotal        decimal.Decimal       `gorm:"column:mrp_total;type:numeric(12,2);not null"`
	Savings         decimal.Decimal       `gorm:"column:savings;type:numeric(12,2);not null"`
	Contact         types.OrderContact    `gorm:"column:contact;type:jsonb"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb"`
	Lines           []OrderLine           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt        time.Time             `gorm:"column:placed_at;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
