package model

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription is a dashboard subscription opened by a completed checkout.
type Subscription struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	Email           string    `gorm:"column:customer_email;type:varchar(255)" json:"customer_email"`
	PriceID         string    `gorm:"type:varchar(255)" json:"price_id"`
	StripeSessionID string    `gorm:"type:varchar(255);index" json:"stripe_session_id"`
	Status          string    `gorm:"type:varchar(50);default:'active'" json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Subscription) TableName() string {
	return "dashboard_subscriptions"
}

// Payment tracks a payment intent created through the provider.
type Payment struct {
	ID              uint              `gorm:"primarykey" json:"id"`
	PaymentIntentID string            `gorm:"type:varchar(255);uniqueIndex;not null" json:"payment_intent_id"`
	AmountPence     int64             `json:"amount_pence"`
	Currency        string            `gorm:"type:varchar(10)" json:"currency"`
	Status          string            `gorm:"type:varchar(50)" json:"status"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// WebhookEvent records processed provider events so redeliveries are skipped.
type WebhookEvent struct {
	ID        uint           `gorm:"primarykey"`
	EventID   string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	Type      string         `gorm:"type:varchar(100);index"`
	Payload   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}
