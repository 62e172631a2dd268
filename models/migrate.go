package models

import "gorm.io/gorm"

// All lists every table owned or read by the service, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Address{},
		&Pincode{},
		&CompanySettings{},
		&TaxRate{},
		&ShippingRate{},
		&AbandonedCartSetting{},
		&Cart{},
		&CartItem{},
		&AbandonedCartItem{},
		&CouponCode{},
		&CouponRedemption{},
		&Payment{},
		&Order{},
		&OrderItem{},
		&Notification{},
		&NotificationLog{},
	}
}

// GatewayOrderIndex keeps each non-empty payment gateway reference on a single order.
const GatewayOrderIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_gateway_order_id ON orders (gateway_order_id) WHERE gateway_order_id <> ''`

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return err
	}
	return db.Exec(GatewayOrderIndex).Error
}
