package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, 30, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, services.DispatchModeEvents, cfg.Dispatch.DispatchMode())
	require.Equal(t, 8, cfg.Dispatch.Workers)
	require.Equal(t, 90*time.Second, cfg.Dispatch.JobTimeout)
	require.Equal(t, "/", cfg.Dispatch.DefaultURL)

	require.True(t, cfg.Transports.WebPush.Enabled)
	require.Equal(t, []int{404, 410, 403}, cfg.Transports.WebPush.PermanentStatuses)
	require.Equal(t, 86400, cfg.Transports.WebPush.TTL)
	require.Equal(t, 50.0, cfg.Transports.WebPush.RatePerSecond)
	require.Equal(t, []string{"UNREGISTERED"}, cfg.Transports.FCM.PermanentCodes)
	require.Equal(t, "https://fcm.googleapis.com", cfg.Transports.FCM.Endpoint)
	require.False(t, cfg.Transports.OneSignal.Enabled)

	require.True(t, cfg.Events.AMQP.Enabled)
	require.Equal(t, "topic", cfg.Events.AMQP.ExchangeType)
	require.Equal(t, "ledger.#", cfg.Events.AMQP.RoutingKey)

	require.Equal(t, 30, cfg.Maintenance.RetentionDays)
	require.Equal(t, "0 3 * * *", cfg.Maintenance.RetentionSchedule)
	require.Equal(t, "@hourly", cfg.Maintenance.CacheSchedule)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FANOUT_SERVER_PORT", "7070")
	t.Setenv("FANOUT_DISPATCH_WORKERS", "2")
	t.Setenv("FANOUT_TRANSPORTS_ONESIGNAL_API_KEY", "from-env")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 2, cfg.Dispatch.Workers)
	require.Equal(t, "from-env", cfg.Transports.OneSignal.APIKey)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, services.DispatchModeDirect, cfg.Dispatch.DispatchMode())
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "Postgres",
		Postgres: DBAuthConfig{
			Host:     "db",
			Port:     5432,
			Database: "fanout",
			Username: "svc",
			Options:  map[string]string{"sslmode": "disable"},
		},
		MySQL: DBAuthConfig{Host: "ignored"},
	}

	conn := cfg.ConnectionConfig()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db", conn.Host)
	require.Equal(t, "fanout", conn.Name)
	require.Equal(t, "svc", conn.User)
	require.Equal(t, "disable", conn.Options["sslmode"])

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./x.db", MySQL: DBAuthConfig{Host: "ignored"}}.ConnectionConfig()
	require.Equal(t, "./x.db", sqlite.Path)
	require.Empty(t, sqlite.Host)
}

func TestDispatcherConfigCollectsRateLimits(t *testing.T) {
	cfg := Config{
		Dispatch: DispatchConfig{SendConcurrency: 4, SendTimeout: time.Second},
	}
	cfg.Transports.WebPush.RatePerSecond = 10
	cfg.Transports.WebPush.Burst = 2
	cfg.Transports.OneSignal.RatePerSecond = 1

	dc := cfg.DispatcherConfig()
	require.Equal(t, 4, dc.Concurrency)
	require.Equal(t, time.Second, dc.SendTimeout)
	require.Len(t, dc.RateLimits, 2)
	require.Equal(t, 2, dc.RateLimits[models.TransportWebPush].Burst)
	require.Contains(t, dc.RateLimits, models.TransportRelay)
	require.NotContains(t, dc.RateLimits, models.TransportMobileToken)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "s", Issuer: "fanout"}}
	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "s", jwtCfg.Secret)
	require.Equal(t, "fanout", jwtCfg.Issuer)
	require.Equal(t, 15*time.Minute, jwtCfg.AccessTokenTTL)
}

func TestAMQPSettings(t *testing.T) {
	settings := AMQPConfig{URI: " amqp://x ", QueueName: "q", Prefetch: 4}.Settings()
	require.Equal(t, "amqp://x", settings.URI)
	require.Equal(t, "q", settings.QueueName)
	require.Equal(t, 4, settings.Prefetch)
}
