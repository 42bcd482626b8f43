package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/fanout/internal/handlers"
)

// The websocket route sits outside the /api group: browsers authenticate with ?token=.
func registerRealtimeRoutes(r *gin.Engine, handler *handlers.RealtimeHandler) {
	r.GET("/api/ws", handler.Stream)
	r.GET("/api/ws/:stream", handler.Stream)
}
