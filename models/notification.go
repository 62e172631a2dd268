package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"

	StatusSent   = "sent"
	StatusFailed = "failed"

	TypeOrderConfirmation     = "order_confirmation"
	TypeAbandonedCartReminder = "abandoned_cart_reminder"
)

// NotificationCategory groups in-app notifications for the storefront inbox.
type NotificationCategory string

const (
	CategoryOrder  NotificationCategory = "ORDER"
	CategorySystem NotificationCategory = "SYSTEM"
)

// Notification is an in-app message shown to a user.
type Notification struct {
	ID        uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID    uuid.UUID            `gorm:"type:uuid;not null;index" json:"user_id"`
	Message   string               `gorm:"type:text;not null" json:"message"`
	Category  NotificationCategory `gorm:"type:varchar(20);not null" json:"category"`
	IsRead    bool                 `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// NotificationLog records every outbound email attempt.
type NotificationLog struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Recipient  string     `json:"recipient"`
	Type       string     `json:"type"`
	Channel    string     `json:"channel"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// NotificationEvent is published to SNS for push fan-out of in-app notifications.
type NotificationEvent struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
