package markets

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

var (
	emptyList   = datatypes.JSON("[]")
	emptyObject = datatypes.JSON("{}")
)

type Store interface {
	ListMarkets(ctx context.Context, filter model.MarketFilter) ([]model.PredictionMarket, error)
	GetMarket(ctx context.Context, id string) (*model.PredictionMarket, error)
}

// Market is a stored market with its JSON columns decoded for output.
type Market struct {
	ID        string         `json:"id"`
	Question  string         `json:"question"`
	Category  string         `json:"category"`
	Volume24h float64        `json:"volume24h"`
	Active    bool           `json:"active"`
	Outcomes  datatypes.JSON `json:"outcomes"`
	RawData   datatypes.JSON `json:"raw_data,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// List returns markets by descending volume. limit falls back to the default
// when unset and is capped at MaxLimit.
func (s *Service) List(ctx context.Context, category string, activeOnly bool, limit int) ([]Market, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	rows, err := s.store.ListMarkets(ctx, model.MarketFilter{Category: category, ActiveOnly: activeOnly, Limit: limit})
	if err != nil {
		s.log.Error("failed to list markets", zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to list markets")
	}
	out := make([]Market, 0, len(rows))
	for i := range rows {
		out = append(out, convert(&rows[i], false))
	}
	return out, nil
}

// Get returns one market including its raw import payload.
func (s *Service) Get(ctx context.Context, id string) (*Market, error) {
	row, err := s.store.GetMarket(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Market not found")
	}
	if err != nil {
		s.log.Error("failed to get market", zap.String("id", id), zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to get market")
	}
	m := convert(row, true)
	return &m, nil
}

func convert(row *model.PredictionMarket, withRaw bool) Market {
	m := Market{
		ID:        row.ID,
		Question:  row.Question,
		Category:  row.Category,
		Volume24h: row.Volume24h,
		Active:    row.Active,
		Outcomes:  decode(row.Outcomes, emptyList),
		UpdatedAt: row.UpdatedAt,
	}
	if withRaw {
		m.RawData = decode(row.RawData, emptyObject)
	}
	return m
}

// decode keeps stored JSON text that parses and substitutes fallback for
// anything else.
func decode(text string, fallback datatypes.JSON) datatypes.JSON {
	if text == "" || !json.Valid([]byte(text)) {
		return fallback
	}
	return datatypes.JSON(text)
}
