package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/model"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	StatusReceived            = "received"
	StatusDashboardSubscribed = "dashboard_subscription_created"
)

type Store interface {
	RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (bool, error)
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	SetPaymentStatus(ctx context.Context, p *model.Payment) error
}

type KeyIssuer interface {
	IssueWithRetry(ctx context.Context, email, tier string) (*keys.Issued, error)
}

// Ingestor verifies provider events and provisions keys or subscriptions.
// Once a signature verifies the event is always acknowledged, so the provider
// does not redeliver on internal failures.
type Ingestor struct {
	secret         string
	dashboardPrice string
	prices         map[string]string
	defaultTier    string
	tolerance      time.Duration
	store          Store
	issuer         KeyIssuer
	log            *zap.Logger
}

func NewIngestor(cfg config.StripeConfig, store Store, issuer KeyIssuer, log *zap.Logger) *Ingestor {
	return &Ingestor{
		secret:         cfg.WebhookSecret,
		dashboardPrice: cfg.DashboardPrice,
		prices:         cfg.Prices,
		defaultTier:    cfg.DefaultTier,
		tolerance:      stripewebhook.DefaultTolerance,
		store:          store,
		issuer:         issuer,
		log:            log,
	}
}

// Handle verifies payload against signature and applies the event. Nothing is
// written before verification succeeds.
func (i *Ingestor) Handle(ctx context.Context, payload []byte, signature string) (string, error) {
	if i.secret == "" {
		return "", apperr.New(apperr.Unavailable, "Payment processing not configured")
	}
	if signature == "" {
		return "", apperr.New(apperr.InvalidSignature, "Missing signature")
	}
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, i.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                i.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.InvalidSignature, "Invalid signature", err)
	}

	log := i.log.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	fresh, err := i.store.RecordWebhookEvent(ctx, &model.WebhookEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		Payload: datatypes.JSON(payload),
	})
	if err != nil {
		log.Error("failed to record webhook event", zap.Error(err))
	} else if !fresh {
		log.Info("duplicate webhook event ignored")
		return StatusReceived, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		return i.checkoutCompleted(ctx, log, event), nil
	case "payment_intent.succeeded":
		i.paymentIntent(ctx, log, event, "succeeded")
	case "payment_intent.payment_failed":
		i.paymentIntent(ctx, log, event, "failed")
	default:
		log.Debug("webhook event ignored")
	}
	return StatusReceived, nil
}

// TierForPrice maps a price id to a tier; unknown ids get the default paid tier.
func (i *Ingestor) TierForPrice(priceID string) string {
	if tier, ok := i.prices[priceID]; ok {
		return tier
	}
	return i.defaultTier
}

func (i *Ingestor) checkoutCompleted(ctx context.Context, log *zap.Logger, event stripe.Event) string {
	var session stripe.CheckoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
		log.Error("malformed checkout session payload")
		return StatusReceived
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	priceID := checkoutPrice(&session)

	if priceID != "" && priceID == i.dashboardPrice {
		sub := &model.Subscription{
			Email:           email,
			PriceID:         priceID,
			StripeSessionID: session.ID,
			Status:          "active",
		}
		if err := i.store.CreateSubscription(ctx, sub); err != nil {
			log.Error("failed to create dashboard subscription", zap.Error(err), zap.String("email", email))
			return StatusReceived
		}
		log.Info("dashboard subscription created", zap.String("email", email))
		return StatusDashboardSubscribed
	}

	tier := i.TierForPrice(priceID)
	issued, err := i.issuer.IssueWithRetry(ctx, email, tier)
	if err != nil {
		log.Error("failed to provision key for checkout", zap.Error(err), zap.String("email", email), zap.String("tier", tier))
		return StatusReceived
	}
	log.Info("provisioned key for checkout",
		zap.String("email", email),
		zap.String("tier", tier),
		zap.String("key", keys.Mask(issued.Token)))
	return StatusReceived
}

// checkoutPrice prefers the first line item and falls back to metadata.
func checkoutPrice(session *stripe.CheckoutSession) string {
	if session.LineItems != nil && len(session.LineItems.Data) > 0 {
		if item := session.LineItems.Data[0]; item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return session.Metadata["price_id"]
}

func (i *Ingestor) paymentIntent(ctx context.Context, log *zap.Logger, event stripe.Event, status string) {
	var intent stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &intent) != nil || intent.ID == "" {
		log.Error("malformed payment intent payload")
		return
	}
	payment := &model.Payment{
		PaymentIntentID: intent.ID,
		AmountPence:     intent.Amount,
		Currency:        string(intent.Currency),
		Status:          status,
	}
	if err := i.store.SetPaymentStatus(ctx, payment); err != nil {
		log.Error("failed to update payment status", zap.Error(err), zap.String("payment_intent", intent.ID))
		return
	}
	log.Info("payment status updated", zap.String("payment_intent", intent.ID), zap.String("status", status))
}
