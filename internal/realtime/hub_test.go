package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, nil, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.ConnectionCount() >= 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHubDeliversToRecipientOnly(t *testing.T) {
	hub := NewHub()
	alice := dialHub(t, hub, "alice")

	hub.BroadcastToUser(StreamNotifications, "bob", Message{Event: EventNotificationCreated, Data: "ignored"})
	hub.BroadcastToUsers(StreamNotifications, []string{"alice"}, Message{Event: EventNotificationCreated, Data: map[string]string{"notificationId": "n-1"}})

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, alice.ReadJSON(&msg))
	require.Equal(t, StreamNotifications, msg.Stream)
	require.Equal(t, EventNotificationCreated, msg.Event)
	require.Equal(t, map[string]any{"notificationId": "n-1"}, msg.Data)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "alice")

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{StreamNotifications}}))
	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong Message
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong.Event)

	hub.BroadcastToUser(StreamNotifications, "alice", Message{Event: EventNotificationCreated})
	hub.BroadcastToUser(StreamSubscriptions, "alice", Message{Event: EventSubscriptionEvicted})

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, EventSubscriptionEvicted, msg.Event)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	_ = dialHub(t, hub, "alice")

	hub.Close()
	require.Eventually(t, func() bool { return hub.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestNilHubIsSafe(t *testing.T) {
	var hub *Hub
	hub.BroadcastToUser(StreamNotifications, "alice", Message{})
	hub.Close()
	require.Zero(t, hub.ConnectionCount())
}

func TestSameOriginOrLoopback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://push.example.com/api/ws", nil)
	req.Host = "push.example.com"

	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://push.example.com")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://evil.example.org")
	require.False(t, sameOriginOrLoopback(req))
}
