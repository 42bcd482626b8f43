package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/fanout/internal/app"
	"github.com/charlesng35/fanout/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, health *handlers.HealthHandler) {
	r.GET("/health", health.Summary)
	r.GET("/health/live", health.Live)
	r.GET("/health/ready", health.Ready)

	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
