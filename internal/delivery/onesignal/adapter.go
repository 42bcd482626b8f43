// Package onesignal delivers payloads to relay-service subscribers through the OneSignal REST API.
package onesignal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/delivery/rest"
	"github.com/charlesng35/fanout/internal/models"
)

const (
	defaultEndpoint  = "https://onesignal.com"
	notificationPath = "/api/v1/notifications"
	notSubscribed    = "All included players are not subscribed"
)

// Config holds the OneSignal application credentials.
type Config struct {
	AppID      string
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// Adapter implements delivery.TransportAdapter for the relay-service transport.
type Adapter struct {
	client *rest.Client
	appID  string
	apiKey string
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	appID := strings.TrimSpace(cfg.AppID)
	apiKey := strings.TrimSpace(cfg.APIKey)
	if appID == "" {
		return nil, errors.New("onesignal: app id is required")
	}
	if apiKey == "" {
		return nil, errors.New("onesignal: rest api key is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Adapter{
		client: rest.New(endpoint, cfg.HTTPClient),
		appID:  appID,
		apiKey: apiKey,
	}, nil
}

// Transport implements delivery.TransportAdapter.
func (a *Adapter) Transport() string {
	return models.TransportRelay
}

type localized struct {
	En string `json:"en"`
}

type createNotification struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         localized         `json:"headings"`
	Contents         localized         `json:"contents"`
	Data             map[string]string `json:"data,omitempty"`
	URL              string            `json:"url,omitempty"`
	ChromeWebIcon    string            `json:"chrome_web_icon,omitempty"`
}

type createReply struct {
	ID         string          `json:"id"`
	Recipients int             `json:"recipients"`
	Errors     json.RawMessage `json:"errors"`
}

// Send creates a OneSignal notification addressed to a single player id.
func (a *Adapter) Send(ctx context.Context, target delivery.Target) error {
	playerID, err := delivery.DecodeToken(target.Subscription.EndpointDescriptor)
	if err != nil {
		return &delivery.PermanentError{Transport: models.TransportRelay, Reason: "invalid descriptor", Err: err}
	}

	payload := target.Payload
	body := createNotification{
		AppID:            a.appID,
		IncludePlayerIDs: []string{playerID},
		Headings:         localized{En: payload.Title},
		Contents:         localized{En: payload.Body},
		Data:             map[string]string{"notificationId": payload.NotificationID},
		URL:              payload.URL,
		ChromeWebIcon:    payload.Icon,
	}

	headers := http.Header{}
	headers.Set("Authorization", "Basic "+a.apiKey)

	resp, err := a.client.PostJSON(ctx, notificationPath, headers, body)
	if err != nil {
		return fmt.Errorf("onesignal: %w", err)
	}

	var reply createReply
	_ = resp.Decode(&reply)

	if dead := invalidPlayer(reply.Errors, playerID); dead != "" {
		return delivery.Permanent(models.TransportRelay, resp.StatusCode, dead)
	}
	if !resp.OK() {
		return fmt.Errorf("onesignal: create notification returned %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	return nil
}

// invalidPlayer inspects the "errors" member, which OneSignal sends either as an object
// ({"invalid_player_ids": [...]}) or as a list of messages.
func invalidPlayer(raw json.RawMessage, playerID string) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var keyed struct {
		InvalidPlayerIDs []string `json:"invalid_player_ids"`
	}
	if err := json.Unmarshal(raw, &keyed); err == nil {
		for _, id := range keyed.InvalidPlayerIDs {
			if id == playerID {
				return "invalid player id"
			}
		}
		return ""
	}

	var messages []string
	if err := json.Unmarshal(raw, &messages); err == nil {
		for _, msg := range messages {
			if strings.Contains(msg, notSubscribed) {
				return msg
			}
		}
	}
	return ""
}
