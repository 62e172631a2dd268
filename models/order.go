package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ParseOrderStatus accepts any casing of a known status.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
)

// Payment is created 1:1 with an order and only mutated by payment confirmation.
type Payment struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Method        string        `gorm:"type:varchar(40);not null" json:"method"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	TransactionID *string       `gorm:"type:varchar(120)" json:"transaction_id,omitempty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// Order pricing fields are a snapshot taken at checkout and never re-priced.
type Order struct {
	ID                  uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	AddressID           uuid.UUID       `gorm:"type:uuid;not null" json:"address_id"`
	BillingAddress      string          `gorm:"type:text" json:"billing_address"`
	ShippingAddress     string          `gorm:"type:text" json:"shipping_address"`
	Subtotal            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	TaxAmount           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	TaxType             string          `gorm:"type:varchar(20);not null" json:"tax_type"`
	AppliedTaxRate      decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"applied_tax_rate"`
	IsTaxInclusive      bool            `gorm:"not null" json:"is_tax_inclusive"`
	TotalBeforeDiscount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_before_discount"`
	DiscountAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	DiscountCode        string          `gorm:"type:varchar(64)" json:"discount_code,omitempty"`
	FinalAmount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"final_amount"`
	Status              OrderStatus     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	GatewayOrderID      string          `gorm:"type:varchar(120)" json:"gateway_order_id,omitempty"`
	CartID              *uuid.UUID      `gorm:"type:uuid" json:"cart_id,omitempty"`
	PaymentID           uuid.UUID       `gorm:"type:uuid;not null" json:"payment_id"`
	Payment             *Payment        `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
	Items               []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID *uuid.UUID      `gorm:"type:uuid" json:"product_id,omitempty"`
	VariantID *uuid.UUID      `gorm:"type:uuid" json:"variant_id,omitempty"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
}

// OrderItemRequest is one requested line. Exactly one of ProductID or VariantID must be set.
type OrderItemRequest struct {
	ProductID *uuid.UUID      `json:"product_id"`
	VariantID *uuid.UUID      `json:"variant_id"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
}

// CreateOrderRequest is the checkout payload.
type CreateOrderRequest struct {
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	AddressID      uuid.UUID          `json:"address_id" binding:"required"`
	Subtotal       string             `json:"subtotal" binding:"required"`
	PaymentMethod  string             `json:"payment_method" binding:"required"`
	DiscountCode   string             `json:"discount_code"`
	CartID         *uuid.UUID         `json:"cart_id"`
	GatewayOrderID string             `json:"gateway_order_id"`
}

// UpdateOrderStatusRequest is the admin payload for moving an order between statuses.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ConfirmPaymentRequest is the reconciliation payload keyed by the gateway order reference.
type ConfirmPaymentRequest struct {
	GatewayOrderID string `json:"gateway_order_id" binding:"required"`
	TransactionID  string `json:"transaction_id"`
}

// OrderFilter narrows the admin order listing.
type OrderFilter struct {
	Status OrderStatus
	Search string
	Page   int
	Limit  int
}

// OrderEvent is published to SNS after an order is created or changes status.
type OrderEvent struct {
	EventType   string    `json:"event_type"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	FinalAmount string    `json:"final_amount"`
	Timestamp   time.Time `json:"timestamp"`
}
