package keys

import (
	"context"
	"errors"
	"regexp"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"

	"go.uber.org/zap"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether s has the local-part@domain shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Store is the part of the key table the issuer needs.
type Store interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	HasActiveKeyForEmail(ctx context.Context, email string) (bool, error)
}

// Issued is returned once; the token is never retrievable afterwards.
type Issued struct {
	Token        string `json:"api_key"`
	Tier         string `json:"tier"`
	DailyLimit   int    `json:"daily_limit"`
	MonthlyLimit int    `json:"monthly_limit"`
}

type Service struct {
	store  Store
	window Window
	tiers  map[string]config.TierConfig
	mint   func() (string, error)
	log    *zap.Logger
}

func NewService(store Store, window Window, tiers map[string]config.TierConfig, log *zap.Logger) *Service {
	return &Service{store: store, window: window, tiers: tiers, mint: Mint, log: log}
}

// Register issues a free key for a new email, at most N per source per window.
func (s *Service) Register(ctx context.Context, email, source string) (*Issued, error) {
	if !ValidEmail(email) {
		return nil, apperr.New(apperr.InvalidInput, "Invalid email format")
	}

	ok, err := s.window.Allow(ctx, source)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "Registration temporarily unavailable", err)
	}
	if !ok {
		return nil, apperr.New(apperr.RateLimited, "Too many registrations. Try again later.")
	}

	exists, err := s.store.HasActiveKeyForEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internalf(err, "Registration failed. Please try again.")
	}
	if exists {
		return nil, apperr.New(apperr.Conflict, "An API key already exists for this email. Contact support if you need a new key.")
	}

	tier := s.tiers["free"]
	issued, err := s.insert(ctx, email, "free", tier.DailyLimit, tier.MonthlyLimit)
	if err != nil {
		return nil, apperr.Internalf(err, "Registration failed. Please try again.")
	}
	s.log.Info("registered free key", zap.String("key", Mask(issued.Token)), zap.String("email", email))
	return issued, nil
}

// Issue creates a key for an operator. dailyOverride replaces the tier quota
// and the monthly quota follows as thirty days of it.
func (s *Service) Issue(ctx context.Context, email, tierName string, dailyOverride *int) (*Issued, error) {
	if !ValidEmail(email) {
		return nil, apperr.New(apperr.InvalidInput, "Invalid email format")
	}
	tier, ok := s.tiers[tierName]
	if !ok {
		return nil, apperr.Invalid("Invalid tier %q", tierName)
	}
	daily, monthly := tier.DailyLimit, tier.MonthlyLimit
	if dailyOverride != nil {
		if *dailyOverride < 1 || *dailyOverride > 100000 {
			return nil, apperr.New(apperr.InvalidInput, "daily_limit must be between 1 and 100000")
		}
		daily, monthly = *dailyOverride, *dailyOverride*30
	}

	issued, err := s.insert(ctx, email, tierName, daily, monthly)
	if err != nil {
		return nil, apperr.Internalf(err, "Key generation failed. Retry.")
	}
	s.log.Info("admin created key", zap.String("tier", tierName), zap.String("key", Mask(issued.Token)), zap.String("email", email))
	return issued, nil
}

// IssueWithRetry mints a paid key and mints once more if the first token
// collides with an existing one.
func (s *Service) IssueWithRetry(ctx context.Context, email, tierName string) (*Issued, error) {
	tier, ok := s.tiers[tierName]
	if !ok {
		return nil, apperr.Invalid("Invalid tier %q", tierName)
	}
	issued, err := s.insert(ctx, email, tierName, tier.DailyLimit, tier.MonthlyLimit)
	if errors.Is(err, db.ErrDuplicate) {
		s.log.Warn("token collision, minting again", zap.String("email", email))
		issued, err = s.insert(ctx, email, tierName, tier.DailyLimit, tier.MonthlyLimit)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Key generation failed")
	}
	return issued, nil
}

func (s *Service) insert(ctx context.Context, email, tier string, daily, monthly int) (*Issued, error) {
	token, err := s.mint()
	if err != nil {
		return nil, err
	}
	key := &model.APIKey{
		Token:        token,
		Tier:         tier,
		Email:        email,
		DailyLimit:   daily,
		MonthlyLimit: monthly,
		Status:       model.KeyStatusActive,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	return &Issued{Token: token, Tier: tier, DailyLimit: daily, MonthlyLimit: monthly}, nil
}
