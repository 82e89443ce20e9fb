package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AmountPence int64  `json:"amount_pence"`
	Currency    string `json:"currency"`
}

// Products is the fixed catalogue offered for one-off payments.
func Products(currency string) []Product {
	return []Product{
		{ID: "aidan_basic", Name: "AIDAN Basic API Access", Description: "1000 requests/month to AIDAN Brain API", AmountPence: 1000, Currency: currency},
		{ID: "aidan_premium", Name: "AIDAN Premium API Access", Description: "Unlimited requests, priority support", AmountPence: 5000, Currency: currency},
		{ID: "marketplace_listing", Name: "AI Service Marketplace Listing", Description: "List your AI service on AIDAN marketplace for 1 month", AmountPence: 2000, Currency: currency},
	}
}

type Store interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, intentID string) (*model.Payment, error)
}

// IntentCreator is the slice of the provider SDK used here.
type IntentCreator interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type IntentRequest struct {
	AmountPence   int64             `json:"amount_pence" binding:"required,gt=0"`
	Description   string            `json:"description" binding:"max=500"`
	Metadata      map[string]string `json:"metadata"`
	CustomerEmail string            `json:"customer_email" binding:"omitempty,email"`
}

type Intent struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountPence     int64  `json:"amount_pence"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
}

type Service struct {
	intents  IntentCreator
	store    Store
	currency string
	log      *zap.Logger
}

// NewService builds a payment service. With no secret key intent creation
// reports Unavailable; lookups still work.
func NewService(cfg config.StripeConfig, store Store, log *zap.Logger) *Service {
	var intents IntentCreator
	if cfg.SecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.SecretKey, nil)
		intents = sc.PaymentIntents
	}
	return NewServiceWithCreator(intents, cfg.Currency, store, log)
}

func NewServiceWithCreator(intents IntentCreator, currency string, store Store, log *zap.Logger) *Service {
	if currency == "" {
		currency = "gbp"
	}
	return &Service{intents: intents, store: store, currency: currency, log: log}
}

func (s *Service) Products() []Product {
	return Products(s.currency)
}

// CreateIntent opens a payment intent with the provider and records it. A
// failure to record is logged; the intent already exists upstream.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if s.intents == nil {
		return nil, apperr.New(apperr.Unavailable, "Payment processing not configured")
	}
	if req.Description == "" {
		req.Description = "AIDAN AI Service"
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.AmountPence),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			s.log.Warn("payment intent rejected", zap.String("code", string(serr.Code)), zap.Error(err))
			return nil, apperr.Wrap(apperr.InvalidInput, serr.Msg, err)
		}
		s.log.Error("payment intent failed", zap.Error(err))
		return nil, apperr.Internalf(err, "Internal server error")
	}

	meta := datatypes.JSONMap{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	record := &model.Payment{
		PaymentIntentID: pi.ID,
		AmountPence:     req.AmountPence,
		Currency:        s.currency,
		Status:          string(pi.Status),
		Metadata:        meta,
	}
	if err := s.store.CreatePayment(ctx, record); err != nil {
		s.log.Error("failed to log payment", zap.String("payment_intent", pi.ID), zap.Error(err))
	} else {
		s.log.Info("logged payment", zap.String("payment_intent", pi.ID),
			zap.String("amount", fmt.Sprintf("%d %s", req.AmountPence, s.currency)),
			zap.String("status", record.Status))
	}

	return &Intent{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		AmountPence:     req.AmountPence,
		Currency:        s.currency,
		Status:          string(pi.Status),
	}, nil
}

func (s *Service) Get(ctx context.Context, intentID string) (*model.Payment, error) {
	p, err := s.store.GetPayment(ctx, intentID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "Payment not found")
	}
	if err != nil {
		s.log.Error("failed to read payment", zap.String("payment_intent", intentID), zap.Error(err))
		return nil, apperr.Internalf(err, "Failed to read payment")
	}
	return p, nil
}
