package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/api"
	"github.com/charlesng35/fanout/internal/app"
	"github.com/charlesng35/fanout/internal/app/maintenance"
	iauth "github.com/charlesng35/fanout/internal/auth"
	"github.com/charlesng35/fanout/internal/cache"
	"github.com/charlesng35/fanout/internal/database"
	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/delivery/fcm"
	"github.com/charlesng35/fanout/internal/delivery/onesignal"
	"github.com/charlesng35/fanout/internal/delivery/webpush"
	"github.com/charlesng35/fanout/internal/events"
	"github.com/charlesng35/fanout/internal/middleware"
	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/monitoring"
	"github.com/charlesng35/fanout/internal/monitoring/checks"
	"github.com/charlesng35/fanout/internal/realtime"
	"github.com/charlesng35/fanout/internal/services"
	"github.com/charlesng35/fanout/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Hub      *realtime.Hub
	Queue    *delivery.Queue
	Consumer *events.Consumer
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, caches, the delivery pipeline and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub()

	subscriptions, err := services.NewSubscriptionRegistry(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise subscription registry: %w", err)
	}

	adapters := buildAdapters(ctx, cfg, log)

	dispatcher, err := delivery.NewDispatcher(subscriptions, adapters, cfg.DispatcherConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}
	endpointHealth, err := delivery.NewHealthManagerFromGorm(stack.DB, delivery.WithEvictionObserver(evictionNotifier(stack.Hub)))
	if err != nil {
		return nil, fmt.Errorf("initialise endpoint health manager: %w", err)
	}
	pipeline, err := delivery.NewPipeline(dispatcher, endpointHealth)
	if err != nil {
		return nil, fmt.Errorf("initialise delivery pipeline: %w", err)
	}

	stack.Queue, err = delivery.NewQueue(cfg.Dispatch.QueueConfig(), pipeline)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatch queue: %w", err)
	}
	stack.Queue.Start()

	notifications, err := services.NewNotificationService(stack.DB,
		services.WithDispatcher(stack.Queue),
		services.WithHub(stack.Hub),
		services.WithPayloadDefaults(cfg.Dispatch.PayloadDefaults()),
		services.WithDispatchMode(cfg.Dispatch.DispatchMode()),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	if cfg.Events.AMQP.Enabled {
		stack.Consumer, err = events.NewConsumer(cfg.Events.AMQP.Settings(), notifications)
		if err != nil {
			return nil, fmt.Errorf("initialise ledger change consumer: %w", err)
		}
		if err := stack.Consumer.Start(ctx); err != nil {
			return nil, err
		}
	} else if cfg.Dispatch.DispatchMode() == services.DispatchModeEvents {
		log.Warn("dispatch mode is events but the amqp consumer is disabled; only the events webhook will trigger dispatch")
	}

	if cfg.Maintenance.Enabled {
		store, err := services.NewNotificationStore(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise notification store: %w", err)
		}
		var purger maintenance.CachePurger
		if stack.Redis == nil {
			purger = dbStore
		}
		stack.Cleaner = maintenance.NewCleaner(store, purger,
			maintenance.WithRetentionDays(cfg.Maintenance.RetentionDays),
			maintenance.WithRetentionSchedule(cfg.Maintenance.RetentionSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	health := monitoring.NewHealthManager()
	health.RegisterLiveness(checks.DispatchQueue(stack.Queue))
	health.RegisterReadiness(checks.Database(stack.DB, 0))
	health.RegisterReadiness(checks.DispatchQueue(stack.Queue))
	health.RegisterReadiness(checks.Transports(adapters))
	if cfg.Cache.Redis.Enabled {
		var client redis.UniversalClient
		if stack.Redis != nil {
			client = stack.Redis
		}
		health.RegisterReadiness(checks.Redis(client, 0))
	}

	var rateStore middleware.RateStore
	switch {
	case stack.Redis != nil:
		rateStore = middleware.NewRateStore(cache.NewRedisStore(stack.Redis))
	default:
		rateStore = middleware.NewRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		DB:            stack.DB,
		JWT:           jwtSvc,
		Notifications: notifications,
		Subscriptions: subscriptions,
		Hub:           stack.Hub,
		RateStore:     rateStore,
		Health:        health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildAdapters registers an adapter for every enabled transport. A transport whose
// configuration is rejected is recorded as a failure so its sends report the cause.
func buildAdapters(ctx context.Context, cfg *app.Config, log *zap.Logger) *delivery.AdapterRegistry {
	registry := delivery.NewAdapterRegistry()

	register := func(transport string, adapter delivery.TransportAdapter, err error) {
		if err != nil {
			log.Warn("push transport unavailable", zap.String("transport", transport), zap.Error(err))
			registry.RegisterFailure(transport, err)
			return
		}
		registry.Register(adapter)
		log.Info("push transport enabled", zap.String("transport", transport))
	}

	if cfg.Transports.WebPush.Enabled {
		adapter, err := webpush.New(cfg.Transports.WebPush.AdapterConfig())
		register(models.TransportWebPush, adapter, err)
	}
	if cfg.Transports.FCM.Enabled {
		adapter, err := fcm.New(ctx, cfg.Transports.FCM.AdapterConfig())
		register(models.TransportMobileToken, adapter, err)
	}
	if cfg.Transports.OneSignal.Enabled {
		adapter, err := onesignal.New(cfg.Transports.OneSignal.AdapterConfig())
		register(models.TransportRelay, adapter, err)
	}

	return registry
}

// evictionNotifier tells connected recipients which of their endpoints were removed.
func evictionNotifier(hub *realtime.Hub) delivery.EvictionObserver {
	return func(_ context.Context, evicted []delivery.FailedTarget) {
		for _, target := range evicted {
			hub.BroadcastToUser(realtime.StreamSubscriptions, target.RecipientID, realtime.Message{
				Event: realtime.EventSubscriptionEvicted,
				Data:  target,
			})
		}
	}
}

// Shutdown stops intake first, then drains queued dispatches and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Consumer != nil {
		if err := s.Consumer.Close(); err != nil {
			log.Warn("ledger change consumer shutdown", zap.Error(err))
		}
	}

	if s.Queue != nil {
		if err := s.Queue.Close(ctx); err != nil {
			log.Warn("dispatch queue did not drain", zap.Error(err))
		}
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
