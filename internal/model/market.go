package model

import "time"

// PredictionMarket is a snapshot row written by the market importer.
// Outcomes and RawData hold JSON text as imported and may be malformed.
type PredictionMarket struct {
	ID        string    `gorm:"primarykey;type:varchar(255)"`
	Question  string
	Category  string  `gorm:"index"`
	Volume24h float64 `gorm:"column:volume24h;default:0"`
	Active    bool    `gorm:"index"`
	Outcomes  string
	RawData   string
	UpdatedAt time.Time
}

func (PredictionMarket) TableName() string {
	return "polymarket_markets"
}

type MarketFilter struct {
	Category   string
	ActiveOnly bool
	Limit      int
}

// PriceMonitorJob is queued for an external checker; nothing here consumes it.
type PriceMonitorJob struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	ProductURL    string    `gorm:"type:varchar(2000);not null" json:"product_url"`
	Email         string    `gorm:"type:varchar(255);not null" json:"email"`
	IntervalHours int       `gorm:"default:24" json:"interval_hours"`
	Status        string    `gorm:"type:varchar(50);default:'pending'" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// All lists every table the service migrates.
func All() []any {
	return []any{
		&APIKey{}, &UsageRecord{},
		&RevenueStream{}, &RevenueTransaction{},
		&Subscription{}, &Payment{}, &WebhookEvent{},
		&Goal{}, &Learning{}, &Procedure{}, &Metric{}, &Task{}, &SelfModelEntry{},
		&PredictionMarket{}, &PriceMonitorJob{},
	}
}
