package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fanout/internal/api"
	"github.com/charlesng35/fanout/internal/app"
	iauth "github.com/charlesng35/fanout/internal/auth"
	sharedtestutil "github.com/charlesng35/fanout/internal/database/testutil"
	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/middleware"
	"github.com/charlesng35/fanout/internal/realtime"
	"github.com/charlesng35/fanout/internal/services"
	"github.com/charlesng35/fanout/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T             *testing.T
	DB            *gorm.DB
	Router        *gin.Engine
	JWT           *iauth.JWTService
	Hub           *realtime.Hub
	Notifications *services.NotificationService
	Subscriptions *services.SubscriptionRegistry
	Dispatch      *RecordingSubmitter
}

// NewEnv provisions a fresh handler test environment. users are inserted into the directory.
func NewEnv(t *testing.T, users ...string) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithUsers(users...))

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	jobs := &RecordingSubmitter{}
	notifications, err := services.NewNotificationService(db,
		services.WithDispatcher(jobs),
		services.WithHub(hub),
	)
	require.NoError(t, err)

	subscriptions, err := services.NewSubscriptionRegistry(db)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Server.RateLimit = app.RateLimitConfig{Requests: 1000, Window: time.Minute}
	cfg.Monitoring.Prometheus = app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"}

	router, err := api.NewRouter(cfg, api.Dependencies{
		DB:            db,
		JWT:           jwtSvc,
		Notifications: notifications,
		Subscriptions: subscriptions,
		Hub:           hub,
		RateStore:     middleware.NewRateStore(nil),
	})
	require.NoError(t, err)

	return &Env{
		T:             t,
		DB:            db,
		Router:        router,
		JWT:           jwtSvc,
		Hub:           hub,
		Notifications: notifications,
		Subscriptions: subscriptions,
		Dispatch:      jobs,
	}
}

// Token issues an access token for userID carrying role.
func (e *Env) Token(userID, role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Role: role})
	require.NoError(e.T, err)
	return token
}

// AdminToken issues an access token with sender privileges.
func (e *Env) AdminToken(userID string) string {
	return e.Token(userID, iauth.RoleAdmin)
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	switch payload := body.(type) {
	case nil:
		buf = bytes.NewBuffer(nil)
	case []byte:
		buf = bytes.NewBuffer(payload)
	default:
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// RecordingSubmitter captures dispatch jobs instead of delivering them.
type RecordingSubmitter struct {
	mu   sync.Mutex
	jobs []delivery.Job
}

// Submit records job.
func (r *RecordingSubmitter) Submit(job delivery.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the recorded jobs.
func (r *RecordingSubmitter) Jobs() []delivery.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery.Job(nil), r.jobs...)
}
