package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/model"
	"github.com/joenofro/revenue-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "sk_test_token"

var testNow = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Tiers:        config.DefaultTiers(),
		Registration: config.RegistrationConfig{MaxPerWindow: 3, Window: "1h"},
		Stripe: config.StripeConfig{
			WebhookSecret:  "whsec_test",
			DashboardPrice: config.DefaultDashboardPrice,
			Prices:         map[string]string{config.DefaultBasicPrice: "basic"},
			DefaultTier:    "basic",
			Currency:       "gbp",
		},
		Vector: config.VectorConfig{Collections: []string{"aidan_memory"}},
		PDF:    config.PDFConfig{MaxBytes: 1 << 20, MaxPages: 10, MaxChars: 1000},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
	}
}

func setupRouter(t *testing.T) (*gin.Engine, db.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := testutil.NewTestService(t)
	cfg := testConfig()
	now := func() time.Time { return testNow }
	s := NewServer(cfg, store, keys.NewMemoryWindow(3, time.Hour, now), now, zap.NewNop())

	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(cfg.TrustedProxies))
	SetupRoutes(router, s, cfg)
	return router, store
}

func seedKey(t *testing.T, store db.Service, token string, daily int) {
	t.Helper()
	require.NoError(t, store.CreateAPIKey(context.Background(), &model.APIKey{
		Token: token, Tier: "pro", Email: "owner@example.com", DailyLimit: daily, MonthlyLimit: daily * 30, Status: model.KeyStatusActive,
	}))
}

func do(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-API-Key", token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPublicRoutes(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = do(router, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "API is running")

	w = do(router, http.MethodGet, "/api", "", nil)
	assert.Equal(t, serviceVersion, decode(t, w)["version"])
}

func TestAuthenticationErrors(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/brain/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = do(router, http.MethodGet, "/brain/status", "sk_unknown", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decode(t, w)["code"])
}

func TestRegisterThenUseKey(t *testing.T) {
	router, store := setupRouter(t)

	w := do(router, http.MethodPost, "/api/register", "", gin.H{"email": "new@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	token := body["api_key"].(string)
	assert.True(t, strings.HasPrefix(token, keys.TokenPrefix))
	assert.Equal(t, "free", body["tier"])

	w = do(router, http.MethodPost, "/api/register", "", gin.H{"email": "new@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodGet, "/brain/status", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "free", decode(t, w)["tier"])

	used, err := store.CountUsage(context.Background(), token, testNow.Add(-time.Hour), testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodPost, "/api/register", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterLimitKeysOnPeerAddress(t *testing.T) {
	router, _ := setupRouter(t)

	register := func(i int, forwardedFor string) int {
		body, _ := json.Marshal(gin.H{"email": fmt.Sprintf("user%d@example.com", i)})
		req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.RemoteAddr = "203.0.113.7:40000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 1; i <= 3; i++ {
		require.Equal(t, http.StatusOK, register(i, fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, http.StatusTooManyRequests, register(4, "198.51.100.4"))
}

func TestDailyLimit(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 2)

	for i := 0; i < 2; i++ {
		w := do(router, http.MethodGet, "/brain/goals", testToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(router, http.MethodGet, "/brain/goals", testToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Rate limit exceeded", decode(t, w)["error"])
}

func TestRevenueRoutes(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)

	w := do(router, http.MethodPost, "/revenue/streams", testToken, gin.H{
		"name": "API", "category": "api", "monthly_revenue": 500, "potential_monthly": 5000, "growth_rate": 10.5,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := decode(t, w)["stream_id"]

	w = do(router, http.MethodPost, "/revenue/streams", testToken, gin.H{"name": "x", "category": "api"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "potential_monthly is required")

	w = do(router, http.MethodGet, "/revenue/summary", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)
	assert.Equal(t, 4500.0, summary["revenue_gap"])
	assert.Equal(t, 1.0, summary["total_streams"])

	w = do(router, http.MethodPut, "/revenue/streams/999", testToken, gin.H{"growth_rate": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/revenue/streams/abc", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/revenue/streams/1", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = do(router, http.MethodGet, "/revenue/dashboard", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500.0, decode(t, w)["combined_total_revenue"])
}

func TestWebhookRequiresSignature(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodPost, "/stripe/webhook", "", gin.H{"id": "evt_1", "type": "checkout.session.completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_signature", decode(t, w)["code"])
}

func signedWebhook(t *testing.T, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	fmt.Fprintf(mac, "%d.%s", ts, payload)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	w := httptest.NewRecorder()
	router, _ := setupRouter(t)
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookAcceptsLargeSignedEvent(t *testing.T) {
	payload, err := json.Marshal(gin.H{
		"id": "evt_large", "object": "event", "type": "customer.updated",
		"data": gin.H{"object": gin.H{
			"id": "cus_1", "object": "customer",
			"metadata": gin.H{"notes": strings.Repeat("n", 200<<10)},
		}},
	})
	require.NoError(t, err)

	w := signedWebhook(t, payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "received", decode(t, w)["status"])

	w = signedWebhook(t, bytes.Repeat([]byte(" "), maxWebhookBody+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPDFExtractRejectsNonPDF(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "fake.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("PK\x03\x04 zip, not pdf"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/pdf/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File must be a valid PDF", decode(t, w)["error"])
}

func TestPDFExtractRejectsOversizedUpload(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)

	upload := func(size int) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "big.pdf")
		require.NoError(t, err)
		_, _ = part.Write(append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), size)...))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/pdf/extract", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-API-Key", testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	// Past the body bound: rejected while parsing the form.
	w := upload(3 << 20)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File too large (max 1MB)", decode(t, w)["error"])

	// Within the body bound but over the file cap.
	w = upload(1<<20 + 100)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMarketsDefaultToActive(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)
	require.NoError(t, store.GetDB().Create(&[]model.PredictionMarket{
		{ID: "open", Question: "q1", Volume24h: 1, Active: true, Outcomes: `["Yes"]`},
		{ID: "closed", Question: "q2", Volume24h: 9, Active: false},
	}).Error)

	w := do(router, http.MethodGet, "/polymarket/markets", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, 1.0, body["count"])

	w = do(router, http.MethodGet, "/polymarket/markets?active_only=false", testToken, nil)
	assert.Equal(t, 2.0, decode(t, w)["count"])

	w = do(router, http.MethodGet, "/polymarket/markets/closed", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	market := decode(t, w)["market"].(map[string]any)
	assert.Equal(t, []any{}, market["outcomes"])

	w = do(router, http.MethodGet, "/polymarket/markets/missing", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchUnavailableWithoutVectorStore(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)

	w := do(router, http.MethodPost, "/search", testToken, gin.H{"query": "revenue"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodPost, "/search", testToken, gin.H{"query": "revenue", "limit": 21})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentsRoutes(t *testing.T) {
	router, store := setupRouter(t)
	seedKey(t, store, testToken, 100)

	w := do(router, http.MethodGet, "/payments/products", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/payments/intents", testToken, gin.H{"amount_pence": 1000})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(router, http.MethodGet, "/payments/pi_missing", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/revenue/streams", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/revenue/streams", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
