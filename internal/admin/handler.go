package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/keys"
	"github.com/joenofro/revenue-api/internal/model"
	"github.com/joenofro/revenue-api/internal/revenue"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Issuer interface {
	Issue(ctx context.Context, email, tier string, dailyOverride *int) (*keys.Issued, error)
}

type Recorder interface {
	RecordTransaction(ctx context.Context, in revenue.TransactionInput) (uint, error)
}

type CreateKeyRequest struct {
	Email      string `json:"email" binding:"required,min=5,max=255"`
	Tier       string `json:"tier"`
	DailyLimit *int   `json:"daily_limit"`
}

// KeyView is an API key as operators see it; the token is masked.
type KeyView struct {
	ID           uint      `json:"id"`
	Key          string    `json:"api_key"`
	Tier         string    `json:"tier"`
	Email        string    `json:"customer_email"`
	DailyLimit   int       `json:"daily_limit"`
	MonthlyLimit int       `json:"monthly_limit"`
	Status       string    `json:"subscription_status"`
	CreatedAt    time.Time `json:"created_at"`
}

type Handler struct {
	db      db.Service
	issuer  Issuer
	revenue Recorder
	log     *zap.Logger
}

func NewHandler(dbService db.Service, issuer Issuer, recorder Recorder, log *zap.Logger) *Handler {
	return &Handler{db: dbService, issuer: issuer, revenue: recorder, log: log}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.log.Error("admin request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(kind.HTTPStatus(), gin.H{"error": apperr.Public(err), "code": kind})
}

func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": apperr.InvalidInput})
		return
	}
	if req.Tier == "" {
		req.Tier = "basic"
	}

	issued, err := h.issuer.Issue(c.Request.Context(), req.Email, req.Tier, req.DailyLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"api_key":     issued.Token,
		"tier":        issued.Tier,
		"daily_limit": issued.DailyLimit,
	})
}

func (h *Handler) ListKeysHandler(c *gin.Context) {
	list, err := h.db.ListAPIKeys(c.Request.Context())
	if err != nil {
		h.respondError(c, apperr.Internalf(err, "Failed to list keys"))
		return
	}
	views := make([]KeyView, 0, len(list))
	for _, k := range list {
		views = append(views, KeyView{
			ID:           k.ID,
			Key:          keys.Mask(k.Token),
			Tier:         k.Tier,
			Email:        k.Email,
			DailyLimit:   k.DailyLimit,
			MonthlyLimit: k.MonthlyLimit,
			Status:       k.Status,
			CreatedAt:    k.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": views, "count": len(views)})
}

func (h *Handler) RevokeKeyHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid key id", "code": apperr.InvalidInput})
		return
	}
	err = h.db.RevokeAPIKey(c.Request.Context(), uint(id))
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found", "code": apperr.NotFound})
		return
	case err != nil:
		h.respondError(c, apperr.Internalf(err, "Failed to revoke key"))
		return
	}
	h.log.Info("admin revoked key", zap.Uint64("id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked", "status": model.KeyStatusRevoked})
}

func (h *Handler) RecordTransactionHandler(c *gin.Context) {
	var in revenue.TransactionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error(), "code": apperr.InvalidInput})
		return
	}
	id, err := h.revenue.RecordTransaction(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": id, "message": "Transaction recorded"})
}
