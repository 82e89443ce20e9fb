package api

import (
	"github.com/joenofro/revenue-api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError renders err as {"error", "code"}. Causes of internal errors are
// logged and never sent to the client.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"error": apperr.Public(err), "code": kind})
}

// bindJSON decodes and validates the body, answering 400 on failure.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.Wrap(apperr.InvalidInput, "Invalid request body: "+err.Error(), err))
		return false
	}
	return true
}
