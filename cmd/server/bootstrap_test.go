package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/fanout/internal/app"
	"github.com/charlesng35/fanout/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)

	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "fanout.sqlite")
	cfg.Cache.Redis.Enabled = false
	cfg.Events.AMQP.Enabled = false

	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntimeServesRequests(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = true

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Queue)
	require.NotNil(t, stack.Cleaner)
	require.Nil(t, stack.Consumer)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"component":"dispatch_queue"`)
	require.Contains(t, rec.Body.String(), `"component":"transports"`)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBootstrapRuntimeRejectsBadDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBuildAdaptersRecordsMisconfiguredTransports(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transports.WebPush.Enabled = true
	cfg.Transports.OneSignal.Enabled = true
	cfg.Transports.OneSignal.AppID = "app-id"
	cfg.Transports.OneSignal.APIKey = "rest-key"

	registry := buildAdapters(context.Background(), cfg, zap.NewNop())

	require.Equal(t, []string{models.TransportRelay}, registry.Transports())
	failures := registry.Failures()
	require.Contains(t, failures, models.TransportWebPush)
	require.NotContains(t, failures, models.TransportMobileToken)

	_, err := registry.Lookup(models.TransportWebPush)
	require.ErrorContains(t, err, "vapid")
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}
