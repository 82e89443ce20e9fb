package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// Service is the relational store behind every operation.
type Service interface {
	Ping(ctx context.Context) error
	Migrate() error
	GetDB() *gorm.DB

	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	FindActiveAPIKey(ctx context.Context, token string) (*model.APIKey, error)
	HasActiveKeyForEmail(ctx context.Context, email string) (bool, error)
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uint) error
	SeedAPIKey(ctx context.Context, key *model.APIKey) error

	RecordUsage(ctx context.Context, rec *model.UsageRecord) error
	CountUsage(ctx context.Context, token string, from, to time.Time) (int64, error)

	CreateRevenueStream(ctx context.Context, stream *model.RevenueStream) error
	GetRevenueStream(ctx context.Context, id uint) (*model.RevenueStream, error)
	ListRevenueStreams(ctx context.Context) ([]model.RevenueStream, error)
	UpdateRevenueStream(ctx context.Context, id uint, fields map[string]any) error
	SummarizeRevenueStreams(ctx context.Context) (model.StreamTotals, error)
	CreateRevenueTransaction(ctx context.Context, tx *model.RevenueTransaction) error
	SummarizeTransactions(ctx context.Context, since string) (model.TransactionTotals, error)

	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	SetPaymentStatus(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, intentID string) (*model.Payment, error)

	BrainOverview(ctx context.Context) (model.BrainOverview, error)
	ListGoals(ctx context.Context) ([]model.Goal, error)
	ListLearnings(ctx context.Context, category string, limit int) ([]model.Learning, error)
	SelectRows(ctx context.Context, table, columns, order, status string, limit int) ([]map[string]any, error)

	ListMarkets(ctx context.Context, filter model.MarketFilter) ([]model.PredictionMarket, error)
	GetMarket(ctx context.Context, id string) (*model.PredictionMarket, error)
	CreatePriceMonitorJob(ctx context.Context, job *model.PriceMonitorJob) error
}

type gormService struct {
	db *gorm.DB
}

// NewService initializes the database connection based on the provided configuration.
func NewService(cfg config.DatabaseConfig, log *zap.Logger) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	gormCfg := &gorm.Config{TranslateError: true}
	if log != nil {
		gormCfg.Logger = NewZapGormLogger(log, gormlogger.Warn, false)
	} else {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// Writers wait on the file lock instead of failing immediately.
		db.Exec("PRAGMA journal_mode=WAL")
		db.Exec("PRAGMA busy_timeout=5000")
	}

	return &gormService{db: db}, nil
}

// NewServiceFromDB wraps an already opened connection.
func NewServiceFromDB(db *gorm.DB) Service {
	return &gormService{db: db}
}

func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

func (s *gormService) Migrate() error {
	if err := s.db.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

func (s *gormService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

func (s *gormService) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return translate(s.db.WithContext(ctx).Create(key).Error)
}

func (s *gormService) FindActiveAPIKey(ctx context.Context, token string) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.WithContext(ctx).
		Where("api_key = ? AND subscription_status = ?", token, model.KeyStatusActive).
		First(&key).Error
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

func (s *gormService) HasActiveKeyForEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.APIKey{}).
		Where("customer_email = ? AND subscription_status = ?", email, model.KeyStatusActive).
		Count(&count).Error
	return count > 0, err
}

func (s *gormService) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.WithContext(ctx).Order("id desc").Find(&keys).Error
	return keys, err
}

func (s *gormService) RevokeAPIKey(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Model(&model.APIKey{}).
		Where("id = ?", id).
		Update("subscription_status", model.KeyStatusRevoked)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SeedAPIKey inserts key unless its token already exists.
func (s *gormService) SeedAPIKey(ctx context.Context, key *model.APIKey) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "api_key"}}, DoNothing: true}).
		Create(key).Error
}

func (s *gormService) RecordUsage(ctx context.Context, rec *model.UsageRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// CountUsage counts records for token with from <= created_at < to.
func (s *gormService) CountUsage(ctx context.Context, token string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("api_key = ? AND created_at >= ? AND created_at < ?", token, from, to).
		Count(&count).Error
	return count, err
}
