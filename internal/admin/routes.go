package admin

import (
	"github.com/joenofro/revenue-api/internal/auth"
	"github.com/joenofro/revenue-api/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler, cfg *config.Config) {
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(cfg.Admin.MasterKey))
	{
		adminGroup.POST("/create_key", handler.CreateKeyHandler)

		keysGroup := adminGroup.Group("/keys")
		{
			keysGroup.GET("", handler.ListKeysHandler)
			keysGroup.POST("/:id/revoke", handler.RevokeKeyHandler)
		}

		adminGroup.POST("/revenue/transactions", handler.RecordTransactionHandler)
	}
}
