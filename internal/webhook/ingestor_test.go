package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/model"
	"github.com/joenofro/revenue-api/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

func sign(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(id, email, linePrice, metaPrice string) []byte {
	session := map[string]any{
		"id":             "cs_test_" + id,
		"object":         "checkout.session",
		"customer_email": email,
		"metadata":       map[string]string{},
	}
	if metaPrice != "" {
		session["metadata"] = map[string]string{"price_id": metaPrice}
	}
	if linePrice != "" {
		session["line_items"] = map[string]any{
			"object": "list",
			"data":   []any{map[string]any{"id": "li_1", "object": "item", "price": map[string]any{"id": linePrice, "object": "price"}}},
		}
	}
	b, _ := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": "2023-10-16",
		"created":     time.Now().Unix(),
		"type":        "checkout.session.completed",
		"data":        map[string]any{"object": session},
	})
	return b
}

func stripeConfig() config.StripeConfig {
	return config.StripeConfig{
		WebhookSecret:  testSecret,
		DashboardPrice: config.DefaultDashboardPrice,
		Prices: map[string]string{
			config.DefaultBasicPrice:   "basic",
			config.DefaultProPrice:     "pro",
			config.DefaultRevenuePrice: "revenue_api",
		},
		DefaultTier: "basic",
	}
}

func setup(t *testing.T) (*Ingestor, db.Service) {
	t.Helper()
	store := testutil.NewTestService(t)
	issuer := keys.NewService(store, keys.NewMemoryWindow(3, time.Hour, nil), config.DefaultTiers(), zap.NewNop())
	return NewIngestor(stripeConfig(), store, issuer, zap.NewNop()), store
}

func keysFor(t *testing.T, store db.Service, email string) []model.APIKey {
	t.Helper()
	var out []model.APIKey
	require.NoError(t, store.GetDB().Where("customer_email = ?", email).Find(&out).Error)
	return out
}

func TestInvalidSignatureMutatesNothing(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_bad", "buyer@example.com", config.DefaultProPrice, "")

	_, err := ing.Handle(context.Background(), payload, sign(payload, "whsec_wrong"))
	assert.True(t, apperr.Is(err, apperr.InvalidSignature))

	_, err = ing.Handle(context.Background(), payload, "")
	assert.True(t, apperr.Is(err, apperr.InvalidSignature))

	tampered := checkoutEvent("evt_bad", "attacker@example.com", config.DefaultProPrice, "")
	_, err = ing.Handle(context.Background(), tampered, sign(payload, testSecret))
	assert.True(t, apperr.Is(err, apperr.InvalidSignature))

	var keyCount, eventCount int64
	store.GetDB().Model(&model.APIKey{}).Count(&keyCount)
	store.GetDB().Model(&model.WebhookEvent{}).Count(&eventCount)
	assert.Zero(t, keyCount)
	assert.Zero(t, eventCount)
}

func TestUnconfiguredSecret(t *testing.T) {
	cfg := stripeConfig()
	cfg.WebhookSecret = ""
	ing := NewIngestor(cfg, nil, nil, zap.NewNop())

	_, err := ing.Handle(context.Background(), []byte("{}"), "t=1,v1=00")
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestCheckoutProvisionsTierFromLineItem(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_pro", "pro@example.com", config.DefaultProPrice, config.DefaultBasicPrice)

	status, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, status)

	got := keysFor(t, store, "pro@example.com")
	require.Len(t, got, 1)
	assert.Equal(t, "pro", got[0].Tier)
	assert.Equal(t, 10000, got[0].DailyLimit)
	assert.Equal(t, model.KeyStatusActive, got[0].Status)
}

func TestCheckoutFallsBackToMetadataPrice(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_meta", "rev@example.com", "", config.DefaultRevenuePrice)

	_, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)

	got := keysFor(t, store, "rev@example.com")
	require.Len(t, got, 1)
	assert.Equal(t, "revenue_api", got[0].Tier)
	assert.Equal(t, 5000, got[0].DailyLimit)
}

func TestCheckoutUnknownPriceDefaultsToBasic(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_unknown", "who@example.com", "price_unmapped", "")

	_, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)

	got := keysFor(t, store, "who@example.com")
	require.Len(t, got, 1)
	assert.Equal(t, "basic", got[0].Tier)
}

func TestCheckoutDashboardPriceCreatesSubscription(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_dash", "dash@example.com", config.DefaultDashboardPrice, "")

	status, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, StatusDashboardSubscribed, status)

	var subs []model.Subscription
	require.NoError(t, store.GetDB().Find(&subs).Error)
	require.Len(t, subs, 1)
	assert.Equal(t, "dash@example.com", subs[0].Email)
	assert.Equal(t, "cs_test_evt_dash", subs[0].StripeSessionID)
	assert.Empty(t, keysFor(t, store, "dash@example.com"))
}

func TestRedeliveredEventIsAcknowledgedOnce(t *testing.T) {
	ing, store := setup(t)
	payload := checkoutEvent("evt_twice", "twice@example.com", config.DefaultBasicPrice, "")

	for i := 0; i < 2; i++ {
		status, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
		require.NoError(t, err)
		assert.Equal(t, StatusReceived, status)
	}
	assert.Len(t, keysFor(t, store, "twice@example.com"), 1)
}

type failingIssuer struct{ mock.Mock }

func (f *failingIssuer) IssueWithRetry(ctx context.Context, email, tier string) (*keys.Issued, error) {
	args := f.Called(ctx, email, tier)
	return nil, args.Error(0)
}

func TestProvisioningFailureIsStillAcknowledged(t *testing.T) {
	store := testutil.NewTestService(t)
	issuer := new(failingIssuer)
	issuer.On("IssueWithRetry", mock.Anything, "fail@example.com", "pro").Return(apperr.New(apperr.Internal, "Key generation failed"))
	ing := NewIngestor(stripeConfig(), store, issuer, zap.NewNop())

	payload := checkoutEvent("evt_fail", "fail@example.com", config.DefaultProPrice, "")
	status, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, status)
	issuer.AssertExpectations(t)
}

func TestPaymentIntentEvents(t *testing.T) {
	ing, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePayment(ctx, &model.Payment{PaymentIntentID: "pi_123", AmountPence: 1000, Currency: "gbp", Status: "requires_payment_method"}))

	event := func(id, typ string) []byte {
		b, _ := json.Marshal(map[string]any{
			"id":     id,
			"object": "event",
			"type":   typ,
			"data": map[string]any{"object": map[string]any{
				"id": "pi_123", "object": "payment_intent", "amount": 1000, "currency": "gbp",
			}},
		})
		return b
	}

	payload := event("evt_ok", "payment_intent.succeeded")
	_, err := ing.Handle(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	p, err := store.GetPayment(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", p.Status)

	payload = event("evt_fail", "payment_intent.payment_failed")
	_, err = ing.Handle(ctx, payload, sign(payload, testSecret))
	require.NoError(t, err)
	p, err = store.GetPayment(ctx, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, "failed", p.Status)
}

func TestOtherEventsAreAcknowledged(t *testing.T) {
	ing, store := setup(t)
	payload, _ := json.Marshal(map[string]any{
		"id": "evt_other", "object": "event", "type": "customer.created",
		"data": map[string]any{"object": map[string]any{"id": "cus_1", "object": "customer"}},
	})

	status, err := ing.Handle(context.Background(), payload, sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, StatusReceived, status)

	var keyCount int64
	store.GetDB().Model(&model.APIKey{}).Count(&keyCount)
	assert.Zero(t, keyCount)
}

func TestTierForPrice(t *testing.T) {
	ing := NewIngestor(stripeConfig(), nil, nil, zap.NewNop())
	assert.Equal(t, "pro", ing.TierForPrice(config.DefaultProPrice))
	assert.Equal(t, "basic", ing.TierForPrice(""))
	assert.Equal(t, "basic", ing.TierForPrice("price_nope"))
}
