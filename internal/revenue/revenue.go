package revenue

import (
	"context"
	"errors"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
)

var categories = map[string]bool{
	"api":        true,
	"product":    true,
	"service":    true,
	"consulting": true,
}

// Categories lists the accepted stream categories.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type Store interface {
	CreateRevenueStream(ctx context.Context, stream *model.RevenueStream) error
	GetRevenueStream(ctx context.Context, id uint) (*model.RevenueStream, error)
	ListRevenueStreams(ctx context.Context) ([]model.RevenueStream, error)
	UpdateRevenueStream(ctx context.Context, id uint, fields map[string]any) error
	SummarizeRevenueStreams(ctx context.Context) (model.StreamTotals, error)
	CreateRevenueTransaction(ctx context.Context, tx *model.RevenueTransaction) error
	SummarizeTransactions(ctx context.Context, since string) (model.TransactionTotals, error)
}

// Aggregates is the secondary, externally maintained daily revenue table.
type Aggregates interface {
	DailyTotals(ctx context.Context) (model.DailyTotals, error)
}

// StreamInput is the body of a create request.
type StreamInput struct {
	Name             string   `json:"name" binding:"required,min=1,max=200"`
	Category         string   `json:"category" binding:"required,max=50"`
	MonthlyRevenue   float64  `json:"monthly_revenue" binding:"gte=0,lte=1000000"`
	PotentialMonthly *float64 `json:"potential_monthly" binding:"required,gte=0,lte=1000000"`
	GrowthRate       float64  `json:"growth_rate" binding:"gte=-100,lte=10000"`
	Notes            *string  `json:"notes" binding:"omitempty,max=1000"`
}

// StreamPatch holds the fields of a partial update; nil means untouched.
type StreamPatch struct {
	MonthlyRevenue   *float64 `json:"monthly_revenue" binding:"omitempty,gte=0,lte=1000000"`
	PotentialMonthly *float64 `json:"potential_monthly" binding:"omitempty,gte=0,lte=1000000"`
	GrowthRate       *float64 `json:"growth_rate" binding:"omitempty,gte=-100,lte=10000"`
	Notes            *string  `json:"notes" binding:"omitempty,max=1000"`
}

type Summary struct {
	model.StreamTotals
	RevenueGap float64 `json:"revenue_gap"`
}

type Transactions struct {
	TotalTransactions int64               `json:"total_transactions"`
	TotalRevenue      float64             `json:"total_revenue"`
	Recent30dRevenue  float64             `json:"recent_30d_revenue"`
	BySource          []model.SourceTotal `json:"by_source"`
}

type StreamsBlock struct {
	TotalStreams     int64   `json:"total_streams"`
	MonthlyRevenue   float64 `json:"monthly_revenue"`
	PotentialMonthly float64 `json:"potential_monthly"`
	RevenueGap       float64 `json:"revenue_gap"`
}

type DailyBlock struct {
	StripeGBP    float64 `json:"stripe_gbp"`
	USDC         float64 `json:"usdc"`
	TotalGBP     float64 `json:"total_gbp"`
	DaysRecorded int64   `json:"days_recorded"`
}

type Dashboard struct {
	RevenueStreams       StreamsBlock `json:"revenue_streams"`
	TransactionsTotal    float64      `json:"transactions_total"`
	DailyAggregated      DailyBlock   `json:"daily_aggregated"`
	CombinedTotalRevenue float64      `json:"combined_total_revenue"`
}

// TransactionInput is an imported transaction. Date defaults to today.
type TransactionInput struct {
	Source   string  `json:"source" binding:"required,max=200"`
	Amount   float64 `json:"amount" binding:"required"`
	Currency string  `json:"currency" binding:"omitempty,len=3"`
	Date     string  `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

type Service struct {
	store Store
	agg   Aggregates
	now   func() time.Time
	log   *zap.Logger
}

func NewService(store Store, agg Aggregates, now func() time.Time, log *zap.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, agg: agg, now: now, log: log}
}

func (s *Service) CreateStream(ctx context.Context, in StreamInput) (uint, error) {
	if !categories[in.Category] {
		return 0, apperr.Invalid("Invalid category. Use: %s", strings.Join(Categories(), ", "))
	}
	if in.PotentialMonthly == nil {
		return 0, apperr.New(apperr.InvalidInput, "potential_monthly is required")
	}
	stream := &model.RevenueStream{
		Name:             html.EscapeString(in.Name),
		Category:         in.Category,
		MonthlyRevenue:   in.MonthlyRevenue,
		PotentialMonthly: *in.PotentialMonthly,
		GrowthRate:       in.GrowthRate,
		Notes:            escapeOptional(in.Notes),
	}
	if err := s.store.CreateRevenueStream(ctx, stream); err != nil {
		return 0, apperr.Internalf(err, "Failed to create revenue stream")
	}
	return stream.ID, nil
}

func (s *Service) GetStream(ctx context.Context, id uint) (*model.RevenueStream, error) {
	stream, err := s.store.GetRevenueStream(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Revenue stream not found")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to retrieve revenue stream")
	}
	return stream, nil
}

func (s *Service) ListStreams(ctx context.Context) ([]model.RevenueStream, error) {
	streams, err := s.store.ListRevenueStreams(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to retrieve revenue streams")
	}
	if streams == nil {
		streams = []model.RevenueStream{}
	}
	return streams, nil
}

// UpdateStream modifies only the supplied fields.
func (s *Service) UpdateStream(ctx context.Context, id uint, patch StreamPatch) error {
	fields := map[string]any{}
	if patch.MonthlyRevenue != nil {
		fields["monthly_revenue"] = *patch.MonthlyRevenue
	}
	if patch.PotentialMonthly != nil {
		fields["potential_monthly"] = *patch.PotentialMonthly
	}
	if patch.GrowthRate != nil {
		fields["growth_rate"] = *patch.GrowthRate
	}
	if patch.Notes != nil {
		fields["notes"] = html.EscapeString(*patch.Notes)
	}
	if len(fields) == 0 {
		return apperr.New(apperr.InvalidInput, "No fields to update")
	}

	err := s.store.UpdateRevenueStream(ctx, id, fields)
	if errors.Is(err, db.ErrNotFound) {
		return apperr.New(apperr.NotFound, "Revenue stream not found")
	}
	if err != nil {
		return apperr.Internalf(err, "Failed to update revenue stream")
	}
	return nil
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	totals, err := s.store.SummarizeRevenueStreams(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to retrieve revenue summary")
	}
	return &Summary{
		StreamTotals: totals,
		RevenueGap:   totals.TotalPotentialRevenue - totals.TotalMonthlyRevenue,
	}, nil
}

// Transactions totals the revenue log with a rolling thirty day window
// measured from the current date.
func (s *Service) Transactions(ctx context.Context) (*Transactions, error) {
	since := s.now().UTC().AddDate(0, 0, -30).Format(time.DateOnly)
	totals, err := s.store.SummarizeTransactions(ctx, since)
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to retrieve transactions")
	}
	bySource := totals.BySource
	if bySource == nil {
		bySource = []model.SourceTotal{}
	}
	return &Transactions{
		TotalTransactions: totals.Count,
		TotalRevenue:      totals.Amount,
		Recent30dRevenue:  totals.Recent,
		BySource:          bySource,
	}, nil
}

// Dashboard merges the ledger with the daily aggregate store by summation.
// Failures in either source degrade to zeros.
func (s *Service) Dashboard(ctx context.Context) *Dashboard {
	var d Dashboard

	if totals, err := s.store.SummarizeRevenueStreams(ctx); err != nil {
		s.log.Warn("revenue dashboard: streams unavailable", zap.Error(err))
	} else {
		d.RevenueStreams = StreamsBlock{
			TotalStreams:     totals.TotalStreams,
			MonthlyRevenue:   totals.TotalMonthlyRevenue,
			PotentialMonthly: totals.TotalPotentialRevenue,
			RevenueGap:       totals.TotalPotentialRevenue - totals.TotalMonthlyRevenue,
		}
	}

	if totals, err := s.store.SummarizeTransactions(ctx, s.now().UTC().Format(time.DateOnly)); err != nil {
		s.log.Warn("revenue dashboard: transactions unavailable", zap.Error(err))
	} else {
		d.TransactionsTotal = totals.Amount
	}

	if s.agg != nil {
		if daily, err := s.agg.DailyTotals(ctx); err != nil {
			s.log.Warn("revenue dashboard: aggregate store unavailable", zap.Error(err))
		} else {
			d.DailyAggregated = DailyBlock{
				StripeGBP:    daily.StripeGBP,
				USDC:         daily.USDC,
				TotalGBP:     daily.StripeGBP + daily.USDC,
				DaysRecorded: daily.Days,
			}
		}
	}

	d.CombinedTotalRevenue = d.RevenueStreams.MonthlyRevenue + d.TransactionsTotal + d.DailyAggregated.TotalGBP
	return &d
}

// RecordTransaction appends an imported transaction to the revenue log.
func (s *Service) RecordTransaction(ctx context.Context, in TransactionInput) (uint, error) {
	if strings.TrimSpace(in.Source) == "" {
		return 0, apperr.New(apperr.InvalidInput, "source is required")
	}
	date := in.Date
	if date == "" {
		date = s.now().UTC().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		return 0, apperr.Invalid("date must be YYYY-MM-DD")
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "GBP"
	}
	tx := &model.RevenueTransaction{
		Source:   html.EscapeString(in.Source),
		Amount:   in.Amount,
		Currency: currency,
		Date:     date,
	}
	if err := s.store.CreateRevenueTransaction(ctx, tx); err != nil {
		return 0, apperr.Internalf(err, "Failed to record transaction")
	}
	return tx.ID, nil
}

func escapeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	escaped := html.EscapeString(*s)
	return &escaped
}

