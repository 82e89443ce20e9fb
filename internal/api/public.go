package api

import (
	"io"
	"net/http"

	"github.com/joenofro/revenue-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody sits well above the largest event the provider sends. A
// rejected body is redelivered forever, so the cap only stops abuse.
const maxWebhookBody = 1 << 20

const indexHTML = `<!doctype html><html><head><title>AIDAN Brain API</title></head>` +
	`<body><h1>AIDAN Brain API</h1><p>API is running.</p></body></html>`

type registerRequest struct {
	Email string `json:"email" binding:"required,min=5,max=255"`
}

func (s *Server) IndexHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) InfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": gin.H{
			"GET /health":        "Service health check",
			"GET /brain/status":  "Brain database overview (requires API key)",
			"POST /brain/query":  "Query structured brain data (requires API key)",
			"POST /search":       "Semantic search (requires API key)",
			"POST /api/register": "Register for free API key",
		},
	})
}

// HealthHandler reports degraded rather than failing when the store is down.
func (s *Server) HealthHandler(c *gin.Context) {
	status := "healthy"
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.log.Warn("health check: database unreachable")
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) RegisterHandler(c *gin.Context) {
	var req registerRequest
	if !s.bindJSON(c, &req) {
		return
	}
	issued, err := s.keys.Register(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"api_key":     issued.Token,
		"tier":        issued.Tier,
		"daily_limit": issued.DailyLimit,
		"message":     "Keep this key secure.",
	})
}

// WebhookHandler verifies against the raw body, so it must not be bound or
// re-encoded before Handle sees it.
func (s *Server) WebhookHandler(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		s.respondError(c, apperr.Wrap(apperr.InvalidInput, "Invalid payload", err))
		return
	}
	if len(payload) > maxWebhookBody {
		s.respondError(c, apperr.New(apperr.PayloadTooLarge, "Payload too large"))
		return
	}
	status, err := s.webhook.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
