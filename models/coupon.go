package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// AbandonedCartCouponName marks coupons issued by the reminder job.
	AbandonedCartCouponName = "Abandoned Cart Coupon"
	// AbandonedCartCodePrefix is prepended to the cart id to form the coupon code.
	AbandonedCartCodePrefix = "ABND-"
)

// AbandonedCartCode returns the deterministic coupon code for a cart.
func AbandonedCartCode(cartID uuid.UUID) string {
	return AbandonedCartCodePrefix + cartID.String()
}

// CouponCode is a percentage discount coupon stored in Postgres.
type CouponCode struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string          `gorm:"type:varchar(120);not null;index" json:"name"`
	Code           string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Discount       decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount"` // percent
	ExpiresAt      time.Time       `gorm:"not null;index" json:"expires_at"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	Used           bool            `gorm:"not null;default:false" json:"used"`
	RedeemCount    int             `gorm:"not null;default:0" json:"redeem_count"`
	MaxRedeemCount int             `gorm:"not null;default:1" json:"max_redeem_count"`
	ShowOnHomepage bool            `gorm:"column:show_on_homepage;not null;default:false" json:"show_on_homepage"`
	UserID         *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"` // nil = global
	CartID         *uuid.UUID      `gorm:"type:uuid;index" json:"cart_id,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAbandonedCartCoupon reports whether the coupon was auto-issued by the reminder job.
// Admin codes are random [A-Z0-9] strings and never carry the prefix.
func (c *CouponCode) IsAbandonedCartCoupon() bool {
	return c.Name == AbandonedCartCouponName && strings.HasPrefix(c.Code, AbandonedCartCodePrefix)
}

// Exhausted reports whether the coupon has reached its redemption cap.
func (c *CouponCode) Exhausted() bool {
	return c.RedeemCount >= c.MaxRedeemCount
}

// RedeemableBy reports whether the coupon scope admits the user.
func (c *CouponCode) RedeemableBy(userID uuid.UUID) bool {
	return c.UserID == nil || *c.UserID == userID
}

// CouponRedemption binds a coupon to a cart and, once the cart converts, to an order.
type CouponRedemption struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CouponID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_coupon_cart" json:"coupon_id"`
	CartID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_coupon_cart" json:"cart_id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null" json:"user_id"`
	OrderID   *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Settled reports whether the redemption has been linked to an order.
func (r *CouponRedemption) Settled() bool {
	return r.OrderID != nil
}

// CreateCouponRequest is the admin payload for issuing a coupon.
type CreateCouponRequest struct {
	Name           string          `json:"name" binding:"required,min=2,max=120"`
	Discount       decimal.Decimal `json:"discount"`
	ExpiresAt      time.Time       `json:"expires_at" binding:"required"`
	UserID         *uuid.UUID      `json:"user_id"`
	MaxRedeemCount int             `json:"max_redeem_count" binding:"gte=0"`
	ShowOnHomepage bool            `json:"show_on_homepage"`
}

// RedeemCouponRequest is the user payload for binding a coupon to a cart.
type RedeemCouponRequest struct {
	Code   string    `json:"code" binding:"required"`
	CartID uuid.UUID `json:"cart_id" binding:"required"`
}

// CouponEvent is published to SNS when a coupon is redeemed or settled.
type CouponEvent struct {
	EventType  string     `json:"event_type"`
	CouponID   string     `json:"coupon_id"`
	CouponCode string     `json:"coupon_code"`
	CartID     string     `json:"cart_id"`
	OrderID    string     `json:"order_id,omitempty"`
	UserID     string     `json:"user_id,omitempty"`
	Discount   string     `json:"discount"`
	Timestamp  time.Time  `json:"timestamp"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
