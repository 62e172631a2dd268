package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is the read model of an account owned by the auth service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(255);index" json:"email"`
	FirstName string    `gorm:"type:varchar(120)" json:"first_name"`
	IsGuest   bool      `gorm:"not null;default:false" json:"is_guest"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DisplayName returns the first name, or a generic greeting when unset.
func (u *User) DisplayName() string {
	if u.FirstName == "" {
		return "Customer"
	}
	return u.FirstName
}

// Cart belongs to exactly one user. ReminderCount is 0 until the reminder job fires once.
type Cart struct {
	ID                       uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID                   uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User                     *User           `gorm:"foreignKey:UserID" json:"-"`
	ReminderCount            int             `gorm:"not null;default:0" json:"reminder_count"`
	LastReminderAt           *time.Time      `json:"last_reminder_at,omitempty"`
	DiscountedAbandonedTotal decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discounted_abandoned_total"`
	Items                    []CartItem      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt                time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime;index" json:"updated_at"`
}

// CartItem references a product or a variant, never both.
type CartItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"cart_id"`
	ProductID *uuid.UUID      `gorm:"type:uuid" json:"product_id,omitempty"`
	VariantID *uuid.UUID      `gorm:"type:uuid" json:"variant_id,omitempty"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DisplayName falls back to a generic label when the catalog name is missing.
func (i CartItem) DisplayName() string {
	if i.Name == "" {
		return "Item"
	}
	return i.Name
}

// AbandonedCartItem is a frozen copy of a cart line taken when the cart is reminded.
type AbandonedCartItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CartID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"cart_id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	ProductID *uuid.UUID      `gorm:"type:uuid" json:"product_id,omitempty"`
	VariantID *uuid.UUID      `gorm:"type:uuid" json:"variant_id,omitempty"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Discount  decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discount"` // percent
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// SnapshotCartItems freezes the cart's current lines with the given discount percent.
func SnapshotCartItems(cart *Cart, discount decimal.Decimal) []AbandonedCartItem {
	out := make([]AbandonedCartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		out = append(out, AbandonedCartItem{
			CartID:    cart.ID,
			UserID:    cart.UserID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Discount:  discount,
		})
	}
	return out
}

// Address is a saved delivery address owned by a user.
type Address struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	FullName   string    `gorm:"type:varchar(200)" json:"full_name"`
	Phone      string    `gorm:"type:varchar(20)" json:"phone"`
	Line1      string    `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string    `gorm:"type:varchar(255)" json:"line2"`
	City       string    `gorm:"type:varchar(120)" json:"city"`
	State      string    `gorm:"type:varchar(120)" json:"state"`
	PostalCode string    `gorm:"type:varchar(12);not null" json:"postal_code"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Formatted renders the address as a single line for order snapshots.
func (a *Address) Formatted() string {
	s := a.FullName + ", " + a.Line1
	if a.Line2 != "" {
		s += ", " + a.Line2
	}
	return s + ", " + a.City + ", " + a.State + " - " + a.PostalCode
}

// ApplyAbandonedDiscountRequest identifies the returning cart.
type ApplyAbandonedDiscountRequest struct {
	CartID uuid.UUID `json:"cart_id" binding:"required"`
}
