package db

import (
	"context"
	"fmt"
	"os"

	"github.com/joenofro/revenue-api/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// AggregateStore reads the daily revenue table maintained by an external
// importer in its own sqlite file.
type AggregateStore struct {
	path string
}

func NewAggregateStore(path string) *AggregateStore {
	return &AggregateStore{path: path}
}

// DailyTotals sums the daily_revenue table. A missing file yields zeros.
func (a *AggregateStore) DailyTotals(ctx context.Context) (model.DailyTotals, error) {
	var totals model.DailyTotals
	if a == nil || a.path == "" {
		return totals, nil
	}
	if _, err := os.Stat(a.path); os.IsNotExist(err) {
		return totals, nil
	}

	conn, err := gorm.Open(sqlite.Open("file:"+a.path+"?mode=ro"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return totals, fmt.Errorf("open aggregate store: %w", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		defer sqlDB.Close()
	}

	var row struct {
		StripeGBP float64
		USDC      float64
		Days      int64
	}
	err = conn.WithContext(ctx).Table("daily_revenue").
		Select("COALESCE(SUM(stripe_gbp), 0) AS stripe_gbp, COALESCE(SUM(usdc), 0) AS usdc, COUNT(*) AS days").
		Scan(&row).Error
	if err != nil {
		return totals, fmt.Errorf("query aggregate store: %w", err)
	}
	totals.StripeGBP = row.StripeGBP
	totals.USDC = row.USDC
	totals.Days = row.Days
	return totals, nil
}
