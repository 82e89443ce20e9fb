package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/joenofro/revenue-api/internal/apperr"
	"github.com/joenofro/revenue-api/internal/db"
	"github.com/joenofro/revenue-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Store resolves tokens and counts what they have used.
type Store interface {
	FindActiveAPIKey(ctx context.Context, token string) (*model.APIKey, error)
	CountUsage(ctx context.Context, token string, from, to time.Time) (int64, error)
}

// KeyInfo is what a successful authorization exposes to handlers.
type KeyInfo struct {
	Tier  string
	Email string
	Limit int
}

// Gate checks a token against the key table and its daily quota. The quota
// check reads the usage log, which is appended only after a request finishes,
// so concurrent requests may exceed the quota by the number in flight.
type Gate struct {
	store Store
	now   func() time.Time
}

func NewGate(store Store, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{store: store, now: now}
}

func (g *Gate) Authorize(ctx context.Context, token string) (*KeyInfo, error) {
	if token == "" {
		return nil, apperr.New(apperr.Unauthenticated, "Missing API key")
	}

	key, err := g.store.FindActiveAPIKey(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.New(apperr.Forbidden, "Invalid API key")
	}
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to verify API key")
	}

	start := DayStart(g.now())
	used, err := g.store.CountUsage(ctx, token, start, start.Add(24*time.Hour))
	if err != nil {
		return nil, apperr.Internalf(err, "Failed to verify API key")
	}
	if used >= int64(key.DailyLimit) {
		return nil, apperr.New(apperr.RateLimited, "Rate limit exceeded")
	}

	return &KeyInfo{Tier: key.Tier, Email: key.Email, Limit: key.DailyLimit}, nil
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const keyInfoContextKey = "brainapi.key"

// TokenFromRequest reads a bearer token, falling back to X-API-Key.
func TokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.GetHeader("X-API-Key")
}

// KeyInfoFrom returns the key attached by AuthMiddleware.
func KeyInfoFrom(c *gin.Context) *KeyInfo {
	if v, ok := c.Get(keyInfoContextKey); ok {
		if info, ok := v.(*KeyInfo); ok {
			return info
		}
	}
	return nil
}

func abort(c *gin.Context, log *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Error("authorization failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"error": apperr.Public(err), "code": kind})
}

func AuthMiddleware(gate *Gate, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := gate.Authorize(c.Request.Context(), TokenFromRequest(c))
		if err != nil {
			abort(c, log, err)
			return
		}
		c.Set(keyInfoContextKey, info)
		c.Next()
	}
}

// UsageRecorder is the append side of the usage log.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec *model.UsageRecord) error
}

// UsageMiddleware appends a usage record after every request that carried a
// token, whatever its outcome. It must run before AuthMiddleware so rejected
// requests are counted too.
func UsageMiddleware(store UsageRecorder, now func() time.Time, log *zap.Logger) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		start := now()
		c.Next()

		token := TokenFromRequest(c)
		if token == "" {
			return
		}
		finished := now()
		rec := &model.UsageRecord{
			Token:          token,
			Endpoint:       c.Request.URL.Path,
			ResponseTimeMS: finished.Sub(start).Milliseconds(),
			StatusCode:     c.Writer.Status(),
			CreatedAt:      finished.UTC(),
		}
		if err := store.RecordUsage(context.WithoutCancel(c.Request.Context()), rec); err != nil {
			log.Warn("failed to log API usage", zap.Error(err), zap.String("path", rec.Endpoint))
		}
	}
}

// AdminAuthMiddleware guards operator endpoints with the master key. With no
// key configured the endpoints are disabled.
func AdminAuthMiddleware(masterKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if masterKey == "" {
			c.AbortWithStatusJSON(apperr.Unavailable.HTTPStatus(), gin.H{"error": "Admin endpoint not configured", "code": apperr.Unavailable})
			return
		}
		given := c.GetHeader("X-Master-Key")
		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(masterKey)) != 1 {
			c.AbortWithStatusJSON(apperr.Forbidden.HTTPStatus(), gin.H{"error": "Unauthorized", "code": apperr.Forbidden})
			return
		}
		c.Next()
	}
}
