package db

import (
	"context"
	"errors"

	"github.com/joenofro/revenue-api/internal/model"
	"gorm.io/gorm"
)

func (s *gormService) BrainOverview(ctx context.Context) (model.BrainOverview, error) {
	var o model.BrainOverview
	db := s.db.WithContext(ctx)

	if err := db.Model(&model.Goal{}).Where("status = ?", "active").Count(&o.ActiveGoals).Error; err != nil {
		return o, err
	}
	if err := db.Model(&model.Learning{}).Count(&o.TotalLearnings).Error; err != nil {
		return o, err
	}
	if err := db.Model(&model.Procedure{}).Count(&o.Procedures).Error; err != nil {
		return o, err
	}
	if err := db.Model(&model.Task{}).Count(&o.Tasks).Error; err != nil {
		return o, err
	}

	var top model.Goal
	err := db.Where("status = ?", "active").Order("priority desc").First(&top).Error
	switch {
	case err == nil:
		o.TopGoal = &model.TopGoal{Title: top.Title, Progress: top.ProgressPct}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return o, err
	}
	return o, nil
}

func (s *gormService) ListGoals(ctx context.Context) ([]model.Goal, error) {
	var goals []model.Goal
	err := s.db.WithContext(ctx).Order("priority desc").Find(&goals).Error
	return goals, err
}

func (s *gormService) ListLearnings(ctx context.Context, category string, limit int) ([]model.Learning, error) {
	var learnings []model.Learning
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	err := q.Find(&learnings).Error
	return learnings, err
}

// SelectRows runs a read over a fixed projection. table, columns and order
// must come from a trusted catalog; only status and limit are caller data.
func (s *gormService) SelectRows(ctx context.Context, table, columns, order, status string, limit int) ([]map[string]any, error) {
	rows := []map[string]any{}
	q := s.db.WithContext(ctx).Table(table).Select(columns)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order(order).Limit(limit).Find(&rows).Error
	return rows, err
}

func (s *gormService) ListMarkets(ctx context.Context, filter model.MarketFilter) ([]model.PredictionMarket, error) {
	var markets []model.PredictionMarket
	q := s.db.WithContext(ctx).Model(&model.PredictionMarket{})
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	err := q.Order("volume24h desc").Limit(filter.Limit).Find(&markets).Error
	return markets, err
}

func (s *gormService) GetMarket(ctx context.Context, id string) (*model.PredictionMarket, error) {
	var m model.PredictionMarket
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *gormService) CreatePriceMonitorJob(ctx context.Context, job *model.PriceMonitorJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}
