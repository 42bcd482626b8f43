package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/handlers/testutil"
	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/services"
)

type sendResult struct {
	NotificationID string `json:"notificationId"`
}

func sendBroadcast(t *testing.T, env *testutil.Env, title string) string {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/notifications/broadcast", map[string]string{
		"title": title,
		"body":  "The clinic closes early today",
	}, env.AdminToken("admin-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result sendResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	require.NotEmpty(t, result.NotificationID)
	return result.NotificationID
}

func TestBroadcastFeedAndMarkRead(t *testing.T) {
	env := testutil.NewEnv(t, "alice", "bob", "carol")

	id := sendBroadcast(t, env, "Maintenance")

	var entries int64
	require.NoError(t, env.DB.Model(&models.FanoutEntry{}).Where("notification_id = ?", id).Count(&entries).Error)
	require.Equal(t, int64(3), entries)

	jobs := env.Dispatch.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, id, jobs[0].Payload.NotificationID)
	require.ElementsMatch(t, []string{"alice", "bob", "carol"}, jobs[0].Recipients)
	require.Equal(t, delivery.ReasonSend, jobs[0].Reason)

	alice := env.Token("alice", "")

	w := env.Request(http.MethodGet, "/api/notifications/unread-count", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Count int64 `json:"count"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &count)
	require.Equal(t, int64(1), count.Count)

	w = env.Request(http.MethodGet, "/api/notifications?limit=10", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, int64(1), resp.Meta.Total)
	require.Equal(t, 10, resp.Meta.Limit)
	var feed []services.FeedItem
	testutil.DecodeInto(t, resp.Data, &feed)
	require.Len(t, feed, 1)
	require.Equal(t, "Maintenance", feed[0].Notification.Title)
	require.Equal(t, models.DefaultSenderLabel, feed[0].Notification.SenderLabel)
	require.False(t, feed[0].IsRead)

	for i := 0; i < 2; i++ {
		w = env.Request(http.MethodPost, "/api/notifications/mark-read", map[string]any{
			"notificationIds": []string{id},
		}, alice)
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	}

	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, alice)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &count)
	require.Zero(t, count.Count)

	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, env.Token("bob", ""))
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &count)
	require.Equal(t, int64(1), count.Count)
}

func TestSendRoutesRequireAdmin(t *testing.T) {
	env := testutil.NewEnv(t, "alice")

	w := env.Request(http.MethodPost, "/api/notifications/broadcast", map[string]string{
		"title": "t",
		"body":  "b",
	}, env.Token("alice", ""))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPost, "/api/notifications/broadcast", map[string]string{"title": "t", "body": "b"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestTargetedSendValidation(t *testing.T) {
	env := testutil.NewEnv(t, "alice", "bob")
	admin := env.AdminToken("admin-1")

	w := env.Request(http.MethodPost, "/api/notifications/targeted", map[string]any{
		"title":   "Reminder",
		"body":    "Appointment tomorrow",
		"userIds": []string{},
	}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, services.ErrEmptyTarget.Code, resp.Error.Code)

	w = env.Request(http.MethodPost, "/api/notifications/targeted", map[string]any{
		"title":   "",
		"body":    "Appointment tomorrow",
		"userIds": []string{"alice"},
	}, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)

	w = env.Request(http.MethodPost, "/api/notifications/targeted", map[string]any{
		"title":       "Reminder",
		"body":        "Appointment tomorrow",
		"userIds":     []string{"alice", "alice", " bob "},
		"senderLabel": "Front desk",
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NoError(t, env.DB.Model(&models.FanoutEntry{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestLedgerEventAndRedispatch(t *testing.T) {
	env := testutil.NewEnv(t, "alice", "bob")
	admin := env.AdminToken("admin-1")
	id := sendBroadcast(t, env, "Status change")

	body, err := json.Marshal(map[string]any{"record": map[string]string{"userId": "alice", "notificationId": id}})
	require.NoError(t, err)
	w := env.Request(http.MethodPost, "/api/notifications/events", body, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/notifications/events", []byte(`{"record":{}}`), admin)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/notifications/events", []byte(`{"record":{"userId":"zed","notificationId":"`+id+`"}}`), admin)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodPost, "/api/notifications/"+id+"/redispatch", nil, admin)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	jobs := env.Dispatch.Jobs()
	require.Len(t, jobs, 3)
	require.Equal(t, delivery.ReasonEvent, jobs[1].Reason)
	require.Equal(t, []string{"alice"}, jobs[1].Recipients)
	require.Equal(t, delivery.ReasonRedispatch, jobs[2].Reason)
	require.ElementsMatch(t, []string{"alice", "bob"}, jobs[2].Recipients)
}

func TestDeleteNotificationCascades(t *testing.T) {
	env := testutil.NewEnv(t, "alice", "bob")
	admin := env.AdminToken("admin-1")
	id := sendBroadcast(t, env, "Oops")

	w := env.Request(http.MethodDelete, "/api/notifications/"+id, nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.FanoutEntry{}).Count(&count).Error)
	require.Zero(t, count)

	w = env.Request(http.MethodDelete, "/api/notifications/"+id, nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEmptyFeed(t *testing.T) {
	env := testutil.NewEnv(t, "alice")

	w := env.Request(http.MethodGet, "/api/notifications", nil, env.Token("alice", ""))
	require.Equal(t, http.StatusOK, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)
	require.JSONEq(t, `[]`, string(resp.Data))
	require.Equal(t, 25, resp.Meta.Limit)
}

func TestHealthEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	start := time.Now()
	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Less(t, time.Since(start), 2*time.Second)

	w = env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"component":"database"`)
}
