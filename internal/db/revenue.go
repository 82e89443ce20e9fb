package db

import (
	"context"

	"github.com/joenofro/revenue-api/internal/model"
)

func (s *gormService) CreateRevenueStream(ctx context.Context, stream *model.RevenueStream) error {
	return s.db.WithContext(ctx).Create(stream).Error
}

func (s *gormService) GetRevenueStream(ctx context.Context, id uint) (*model.RevenueStream, error) {
	var stream model.RevenueStream
	if err := s.db.WithContext(ctx).First(&stream, id).Error; err != nil {
		return nil, translate(err)
	}
	return &stream, nil
}

func (s *gormService) ListRevenueStreams(ctx context.Context) ([]model.RevenueStream, error) {
	var streams []model.RevenueStream
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&streams).Error
	return streams, err
}

// UpdateRevenueStream touches only the given columns; updated_at is set by gorm.
func (s *gormService) UpdateRevenueStream(ctx context.Context, id uint, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&model.RevenueStream{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormService) SummarizeRevenueStreams(ctx context.Context) (model.StreamTotals, error) {
	var totals model.StreamTotals
	err := s.db.WithContext(ctx).Model(&model.RevenueStream{}).
		Select("COUNT(*) AS total_streams, " +
			"COALESCE(SUM(monthly_revenue), 0) AS total_monthly_revenue, " +
			"COALESCE(SUM(potential_monthly), 0) AS total_potential_revenue, " +
			"COALESCE(AVG(growth_rate), 0) AS avg_growth_rate").
		Scan(&totals).Error
	return totals, err
}

func (s *gormService) CreateRevenueTransaction(ctx context.Context, tx *model.RevenueTransaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

// SummarizeTransactions totals the revenue log; Recent covers date >= since.
func (s *gormService) SummarizeTransactions(ctx context.Context, since string) (model.TransactionTotals, error) {
	var totals model.TransactionTotals
	db := s.db.WithContext(ctx)

	var overall struct {
		Count  int64
		Amount float64
	}
	err := db.Model(&model.RevenueTransaction{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Scan(&overall).Error
	if err != nil {
		return totals, err
	}
	totals.Count = overall.Count
	totals.Amount = overall.Amount

	err = db.Model(&model.RevenueTransaction{}).
		Select("source, COUNT(*) AS transactions, COALESCE(SUM(amount), 0) AS amount").
		Group("source").
		Order("amount DESC").
		Scan(&totals.BySource).Error
	if err != nil {
		return totals, err
	}

	err = db.Model(&model.RevenueTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("date >= ?", since).
		Scan(&totals.Recent).Error
	return totals, err
}
