package api

import (
	"time"

	"github.com/joenofro/revenue-api/internal/auth"
	"github.com/joenofro/revenue-api/internal/brain"
	"github.com/joenofro/revenue-api/internal/config"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/markets"
	"github.com/joenofro/revenue-api/internal/monitor"
	"github.com/joenofro/revenue-api/internal/payments"
	"github.com/joenofro/revenue-api/internal/pdftext"
	"github.com/joenofro/revenue-api/internal/revenue"
	"github.com/joenofro/revenue-api/internal/vector"
	"github.com/joenofro/revenue-api/internal/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	serviceName    = "AIDAN Brain API"
	serviceVersion = "0.2.0"
)

// Server holds the collaborators behind the public and authenticated routes.
type Server struct {
	store    db.Service
	gate     *auth.Gate
	keys     *keys.Service
	revenue  *revenue.Service
	webhook  *webhook.Ingestor
	brain    *brain.Service
	vectors  *vector.Client
	pdf      *pdftext.Extractor
	monitor  *monitor.Service
	markets  *markets.Service
	payments *payments.Service
	now      func() time.Time
	log      *zap.Logger
}

// NewServer wires every domain service over one store.
func NewServer(cfg *config.Config, store db.Service, window keys.Window, now func() time.Time, log *zap.Logger) *Server {
	if now == nil {
		now = time.Now
	}
	keySvc := keys.NewService(store, window, cfg.Tiers, log)
	vectors := vector.NewClient(cfg.Vector, log)
	return &Server{
		store:    store,
		gate:     auth.NewGate(store, now),
		keys:     keySvc,
		revenue:  revenue.NewService(store, db.NewAggregateStore(cfg.AggregateDBPath), now, log),
		webhook:  webhook.NewIngestor(cfg.Stripe, store, keySvc, log),
		brain:    brain.NewService(store, vectors, log),
		vectors:  vectors,
		pdf:      pdftext.NewExtractor(cfg.PDF),
		monitor:  monitor.NewService(store, log),
		markets:  markets.NewService(store, log),
		payments: payments.NewService(cfg.Stripe, store, log),
		now:      now,
		log:      log,
	}
}

// Keys exposes the issuer so operator routes share it.
func (s *Server) Keys() *keys.Service {
	return s.keys
}

func (s *Server) Revenue() *revenue.Service {
	return s.revenue
}

// SetupRoutes registers the public and API-key protected routes.
func SetupRoutes(router *gin.Engine, s *Server, cfg *config.Config) {
	router.Use(SecurityHeaders(), CORS(cfg.CORS), RequestLogger(s.log))

	router.GET("/", s.IndexHandler)
	router.GET("/api", s.InfoHandler)
	router.GET("/health", s.HealthHandler)
	router.POST("/api/register", s.RegisterHandler)
	router.POST("/stripe/webhook", s.WebhookHandler)

	authed := router.Group("")
	authed.Use(auth.UsageMiddleware(s.store, s.now, s.log), auth.AuthMiddleware(s.gate, s.log))
	{
		brainGroup := authed.Group("/brain")
		{
			brainGroup.GET("/status", s.BrainStatusHandler)
			brainGroup.GET("/goals", s.BrainGoalsHandler)
			brainGroup.GET("/learnings", s.BrainLearningsHandler)
			brainGroup.POST("/query", s.BrainQueryHandler)
		}

		authed.POST("/search", s.SearchHandler)
		authed.POST("/pdf/extract", s.PDFExtractHandler)
		authed.POST("/monitor/price", s.PriceMonitorHandler)

		revenueGroup := authed.Group("/revenue")
		{
			revenueGroup.POST("/streams", s.CreateStreamHandler)
			revenueGroup.GET("/streams", s.ListStreamsHandler)
			revenueGroup.GET("/streams/:id", s.GetStreamHandler)
			revenueGroup.PUT("/streams/:id", s.UpdateStreamHandler)
			revenueGroup.GET("/summary", s.RevenueSummaryHandler)
			revenueGroup.GET("/transactions", s.RevenueTransactionsHandler)
			revenueGroup.GET("/dashboard", s.RevenueDashboardHandler)
		}

		marketGroup := authed.Group("/polymarket")
		{
			marketGroup.GET("/markets", s.ListMarketsHandler)
			marketGroup.GET("/markets/:id", s.GetMarketHandler)
		}

		paymentGroup := authed.Group("/payments")
		{
			paymentGroup.GET("/products", s.ProductsHandler)
			paymentGroup.POST("/intents", s.CreateIntentHandler)
			paymentGroup.GET("/:intent_id", s.GetPaymentHandler)
		}
	}
}
