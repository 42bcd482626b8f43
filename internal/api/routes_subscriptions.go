package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fanout/internal/handlers"
)

func registerSubscriptionRoutes(api *gin.RouterGroup, handler *handlers.SubscriptionHandler) {
	group := api.Group("/subscriptions")
	{
		group.GET("", handler.List)
		group.POST("", handler.Register)
		group.DELETE("/:id", handler.Delete)
	}
}
