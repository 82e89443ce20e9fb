package brain

import (
	"context"
	"sort"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
)

const (
	DefaultLearningLimit = 10
	MaxLimit             = 50
)

// query is a fixed projection over one memory table. Nothing in it comes from
// the caller.
type query struct {
	table     string
	columns   string
	order     string
	hasStatus bool
}

var catalog = map[string]query{
	"goals":      {"goals", "id, title, priority, progress_pct, status, category", "priority DESC", true},
	"learnings":  {"learning_log", "id, source, lesson, category, confidence, created_at", "created_at DESC", false},
	"procedures": {"procedures", "id, task_type, strategy, tools_sequence, created_at", "created_at DESC", false},
	"metrics":    {"metrics", "date, tasks_completed, tasks_failed, exec_allowed, exec_blocked", "date DESC", false},
	"tasks":      {"tasks", "id, goal_id, description, status, priority, result, created_at", "created_at DESC", true},
	"self_model": {"self_model", "attribute, value, confidence", "attribute", false},
}

// QueryTypes lists the accepted query_type values.
func QueryTypes() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type Store interface {
	BrainOverview(ctx context.Context) (model.BrainOverview, error)
	ListGoals(ctx context.Context) ([]model.Goal, error)
	ListLearnings(ctx context.Context, category string, limit int) ([]model.Learning, error)
	SelectRows(ctx context.Context, table, columns, order, status string, limit int) ([]map[string]any, error)
}

// Counter reports how many entries the vector memory holds.
type Counter interface {
	Count(ctx context.Context) int64
}

type Status struct {
	ActiveGoals         int64          `json:"active_goals"`
	TotalLearnings      int64          `json:"total_learnings"`
	Procedures          int64          `json:"procedures"`
	Tasks               int64          `json:"tasks"`
	TopGoal             *model.TopGoal `json:"top_goal"`
	VectorMemoryEntries int64          `json:"vector_memory_entries"`
	Tier                string         `json:"tier"`
}

type QueryRequest struct {
	QueryType    string `json:"query_type" binding:"required"`
	Limit        int    `json:"limit"`
	StatusFilter string `json:"status_filter"`
}

type QueryResult struct {
	QueryType string           `json:"query_type"`
	Count     int              `json:"count"`
	Results   []map[string]any `json:"results"`
}

type Service struct {
	store   Store
	vectors Counter
	log     *zap.Logger
}

func NewService(store Store, vectors Counter, log *zap.Logger) *Service {
	return &Service{store: store, vectors: vectors, log: log}
}

// Status summarizes the memory tables for the calling tier.
func (s *Service) Status(ctx context.Context, tier string) (*Status, error) {
	o, err := s.store.BrainOverview(ctx)
	if err != nil {
		s.log.Error("failed to read brain overview", zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to read brain status")
	}
	st := &Status{
		ActiveGoals:    o.ActiveGoals,
		TotalLearnings: o.TotalLearnings,
		Procedures:     o.Procedures,
		Tasks:          o.Tasks,
		TopGoal:        o.TopGoal,
		Tier:           tier,
	}
	if s.vectors != nil {
		st.VectorMemoryEntries = s.vectors.Count(ctx)
	}
	return st, nil
}

func (s *Service) Goals(ctx context.Context) ([]model.Goal, error) {
	goals, err := s.store.ListGoals(ctx)
	if err != nil {
		s.log.Error("failed to list goals", zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to list goals")
	}
	if goals == nil {
		goals = []model.Goal{}
	}
	return goals, nil
}

// Learnings returns the newest learnings, optionally for one category. The
// limit defaults to ten and is capped at fifty.
func (s *Service) Learnings(ctx context.Context, category string, limit int) ([]model.Learning, error) {
	switch {
	case limit <= 0:
		limit = DefaultLearningLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	learnings, err := s.store.ListLearnings(ctx, category, limit)
	if err != nil {
		s.log.Error("failed to list learnings", zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to list learnings")
	}
	if learnings == nil {
		learnings = []model.Learning{}
	}
	return learnings, nil
}

func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	q, ok := catalog[req.QueryType]
	if !ok {
		return nil, apperr.Invalid("Invalid query_type. Use: %v", QueryTypes())
	}
	if req.Limit == 0 {
		req.Limit = DefaultLearningLimit
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return nil, apperr.Invalid("limit must be between 1 and %d", MaxLimit)
	}
	if req.StatusFilter != "" && !q.hasStatus {
		return nil, apperr.Invalid("status_filter is not supported for %s", req.QueryType)
	}

	rows, err := s.store.SelectRows(ctx, q.table, q.columns, q.order, req.StatusFilter, req.Limit)
	if err != nil {
		s.log.Error("brain query failed", zap.String("query_type", req.QueryType), zap.Error(err))
		return nil, apperr.Internalf(err, "Query failed")
	}
	return &QueryResult{QueryType: req.QueryType, Count: len(rows), Results: rows}, nil
}
