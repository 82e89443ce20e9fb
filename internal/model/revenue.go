package model

import "time"

type RevenueStream struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null" json:"name"`
	Category         string    `gorm:"type:varchar(50);not null" json:"category"`
	MonthlyRevenue   float64   `gorm:"default:0" json:"monthly_revenue"`
	PotentialMonthly float64   `gorm:"not null" json:"potential_monthly"`
	GrowthRate       float64   `gorm:"default:0" json:"growth_rate"`
	Notes            *string   `json:"notes"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RevenueTransaction is an imported payment. Date is YYYY-MM-DD.
type RevenueTransaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Source    string    `gorm:"type:varchar(255);index" json:"source"`
	Amount    float64   `json:"amount"`
	Currency  string    `gorm:"type:varchar(10);default:'GBP'" json:"currency"`
	Date      string    `gorm:"type:varchar(10);index" json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

func (RevenueTransaction) TableName() string {
	return "revenue_log"
}

// StreamTotals is the aggregate over all revenue streams.
type StreamTotals struct {
	TotalStreams          int64   `json:"total_streams"`
	TotalMonthlyRevenue   float64 `json:"total_monthly_revenue"`
	TotalPotentialRevenue float64 `json:"total_potential_revenue"`
	AvgGrowthRate         float64 `json:"avg_growth_rate"`
}

type SourceTotal struct {
	Source       string  `json:"source"`
	Transactions int64   `json:"transactions"`
	Amount       float64 `json:"amount"`
}

type TransactionTotals struct {
	Count    int64
	Amount   float64
	Recent   float64
	BySource []SourceTotal
}

// DailyTotals comes from the externally maintained aggregate store.
type DailyTotals struct {
	StripeGBP float64
	USDC      float64
	Days      int64
}
