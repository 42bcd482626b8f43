package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/app"
	iauth "github.com/charlesng35/fanout/internal/auth"
	"github.com/charlesng35/fanout/internal/handlers"
	"github.com/charlesng35/fanout/internal/middleware"
	"github.com/charlesng35/fanout/internal/monitoring"
	"github.com/charlesng35/fanout/internal/monitoring/checks"
	"github.com/charlesng35/fanout/internal/realtime"
	"github.com/charlesng35/fanout/internal/services"
)

// Dependencies bundles the long-lived services exposed over HTTP.
type Dependencies struct {
	DB            *gorm.DB
	JWT           *iauth.JWTService
	Notifications *services.NotificationService
	Subscriptions *services.SubscriptionRegistry
	Hub           *realtime.Hub
	RateStore     middleware.RateStore
	Health        *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers every route. Without
// deps.Health, readiness only probes the database.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}
	subscriptionHandler, err := handlers.NewSubscriptionHandler(deps.Subscriptions)
	if err != nil {
		return nil, err
	}

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(deps.DB, 0))
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, handlers.NewHealthHandler(health))
	registerRealtimeRoutes(r, handlers.NewRealtimeHandler(deps.Hub, deps.JWT))

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	api.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerNotificationRoutes(api, notificationHandler)
	registerSubscriptionRoutes(api, subscriptionHandler)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
