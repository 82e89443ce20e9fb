package model

import (
	"time"

	"gorm.io/gorm"
)

// Key statuses. Keys are never deleted, only revoked.
const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// APIKey represents a client's API key for accessing the service.
type APIKey struct {
	gorm.Model
	Token        string `gorm:"column:api_key;type:varchar(255);uniqueIndex;not null" json:"-"`
	Tier         string `gorm:"type:varchar(50);default:'free';not null" json:"tier"`
	Email        string `gorm:"column:customer_email;type:varchar(255);index" json:"customer_email"`
	DailyLimit   int    `gorm:"default:100;not null" json:"daily_limit"`
	MonthlyLimit int    `gorm:"default:3000;not null" json:"monthly_limit"`
	Status       string `gorm:"column:subscription_status;type:varchar(50);default:'active';not null" json:"status"`
}

// UsageRecord is one row per completed request that carried a token.
type UsageRecord struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	Token          string    `gorm:"column:api_key;type:varchar(255);index:idx_usage_key_time,priority:1;not null" json:"-"`
	Endpoint       string    `gorm:"type:varchar(255);not null" json:"endpoint"`
	ResponseTimeMS int64     `gorm:"column:response_time_ms" json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	CreatedAt      time.Time `gorm:"index:idx_usage_key_time,priority:2" json:"created_at"`
}

func (UsageRecord) TableName() string {
	return "api_usage_log"
}
