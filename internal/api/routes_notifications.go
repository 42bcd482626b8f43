package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/fanout/internal/auth"
	"github.com/charlesng35/fanout/internal/handlers"
	"github.com/charlesng35/fanout/internal/middleware"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	requireAdmin := middleware.RequireRole(iauth.RoleAdmin)

	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/mark-read", handler.MarkRead)

		group.POST("/broadcast", requireAdmin, handler.Broadcast)
		group.POST("/targeted", requireAdmin, handler.Targeted)
		group.POST("/events", requireAdmin, handler.LedgerEvent)
		group.POST("/:id/redispatch", requireAdmin, handler.Redispatch)
		group.DELETE("/:id", requireAdmin, handler.Delete)
	}
}
