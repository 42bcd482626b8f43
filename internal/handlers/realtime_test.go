package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/fanout/internal/auth"
	"github.com/charlesng35/fanout/internal/realtime"
)

func newRealtimeFixture(t *testing.T) (*realtime.Hub, *iauth.JWTService, *RealtimeHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	return hub, jwtSvc, NewRealtimeHandler(hub, jwtSvc)
}

func TestRealtimeHandlerUnauthorizedWithoutToken(t *testing.T) {
	_, _, handler := newRealtimeFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ws", nil)

	handler.Stream(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeHandlerRejectsInvalidToken(t *testing.T) {
	_, _, handler := newRealtimeFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ws?token=garbage", nil)

	handler.Stream(c)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	_, jwtSvc, handler := newRealtimeFixture(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ws?stream=unknown&token="+token, nil)

	handler.Stream(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRealtimeHandlerStreamsNotificationEvents(t *testing.T) {
	hub, jwtSvc, handler := newRealtimeFixture(t)

	router := gin.New()
	router.GET("/api/ws", handler.Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?streams=notifications&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastToUsers(realtime.StreamNotifications, []string{"user-1"}, realtime.Message{
		Event: realtime.EventNotificationCreated,
		Data:  map[string]string{"notificationId": "n-1"},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.StreamNotifications, msg.Stream)
	require.Equal(t, realtime.EventNotificationCreated, msg.Event)
}

func TestGatherStreamsDeduplicates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/ws?stream=Notifications&streams=notifications,subscriptions,", nil)

	require.Equal(t, []string{"notifications", "subscriptions"}, gatherStreams(c))
}
