package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tax rate names recognised by the resolver.
const (
	TaxCGST = "CGST"
	TaxSGST = "SGST"
	TaxIGST = "IGST"
)

// Pincode maps a delivery postal code to its state.
type Pincode struct {
	ID                    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code                  string    `gorm:"type:varchar(12);uniqueIndex;not null" json:"code"`
	City                  string    `gorm:"type:varchar(120)" json:"city"`
	State                 string    `gorm:"type:varchar(120);not null" json:"state"`
	EstimatedDeliveryDays int       `gorm:"not null;default:0" json:"estimated_delivery_days"`
	IsActive              bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CompanySettings is the merchant's tax jurisdiction. Only the first row is read.
type CompanySettings struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyName    string    `gorm:"type:varchar(200)" json:"company_name"`
	CompanyState   string    `gorm:"type:varchar(120);not null" json:"company_state"`
	IsTaxInclusive bool      `gorm:"not null;default:false" json:"is_tax_inclusive"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type TaxRate struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name       string          `gorm:"type:varchar(20);not null" json:"name"`
	Percentage decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"percentage"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ShippingRate struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	State          string          `gorm:"type:varchar(120);not null" json:"state"`
	IntraStateRate decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"intra_state_rate"`
	InterStateRate decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"inter_state_rate"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AbandonedCartSetting is one reminder tier.
type AbandonedCartSetting struct {
	ID                           uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	HoursAfterEmailIsSent        int             `gorm:"not null" json:"hours_after_email_is_sent"`
	HoursAfterEmailCartIsEmptied int             `gorm:"not null" json:"hours_after_email_cart_is_emptied"`
	DiscountToBeGivenInPercent   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount_to_be_given_in_percent"`
	IsActive                     bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt                    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SendDelay is how long a cart must be idle before this tier reminds it.
func (s AbandonedCartSetting) SendDelay() time.Duration {
	return time.Duration(s.HoursAfterEmailIsSent) * time.Hour
}

// CouponLifetime is how long the tier's coupon stays redeemable.
func (s AbandonedCartSetting) CouponLifetime() time.Duration {
	return time.Duration(s.HoursAfterEmailCartIsEmptied) * time.Hour
}

// OrderSummaryRequest asks for the tax and shipping applicable to a delivery pincode.
type OrderSummaryRequest struct {
	PostalCode string          `json:"postal_code" binding:"required,pincode"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}
