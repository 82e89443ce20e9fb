package monitor

import (
	"context"
	"net/netip"
	"net/url"
	"strings"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
)

const (
	MaxURLLength     = 2000
	MinIntervalHours = 1
	MaxIntervalHours = 720
)

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"127.0.0.1":                {},
	"0.0.0.0":                  {},
	"169.254.169.254":          {},
	"::1":                      {},
	"metadata.google.internal": {},
}

type Store interface {
	CreatePriceMonitorJob(ctx context.Context, job *model.PriceMonitorJob) error
}

type Request struct {
	ProductURL    string `json:"product_url" binding:"required,max=2000"`
	Email         string `json:"email" binding:"required,min=5,max=255"`
	IntervalHours int    `json:"interval_hours"`
}

type Created struct {
	JobID   uint   `json:"job_id"`
	Message string `json:"message"`
}

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// ValidateURL accepts absolute http(s) URLs whose host is neither a known
// internal name nor a private, loopback or link-local address literal.
func ValidateURL(raw string) bool {
	if raw == "" || len(raw) > MaxURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if _, blocked := blockedHosts[host]; blocked {
		return false
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return false
		}
	}
	return true
}

// Create queues a pending job. Nothing in this service polls the queue.
func (s *Service) Create(ctx context.Context, req Request) (*Created, error) {
	if req.IntervalHours == 0 {
		req.IntervalHours = 24
	}
	if req.IntervalHours < MinIntervalHours || req.IntervalHours > MaxIntervalHours {
		return nil, apperr.Invalid("interval_hours must be between %d and %d", MinIntervalHours, MaxIntervalHours)
	}
	if !keys.ValidEmail(req.Email) {
		return nil, apperr.Invalid("Invalid email format")
	}
	if !ValidateURL(req.ProductURL) {
		return nil, apperr.Invalid("Invalid or blocked URL")
	}

	job := &model.PriceMonitorJob{
		ProductURL:    req.ProductURL,
		Email:         req.Email,
		IntervalHours: req.IntervalHours,
		Status:        "pending",
	}
	if err := s.store.CreatePriceMonitorJob(ctx, job); err != nil {
		s.log.Error("failed to create price monitor job", zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to create monitoring job")
	}
	return &Created{JobID: job.ID, Message: "Price monitoring job created."}, nil
}
