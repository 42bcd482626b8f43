// Package fcm delivers payloads to mobile push tokens through the Firebase Cloud Messaging
// HTTP v1 API.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/delivery/rest"
	"github.com/charlesng35/fanout/internal/models"
)

const (
	defaultEndpoint = "https://fcm.googleapis.com"
	messagingScope  = "https://www.googleapis.com/auth/firebase.messaging"
	fcmErrorType    = "type.googleapis.com/google.firebase.fcm.v1.FcmError"
)

// Default FCM error codes that mean the registration token is dead.
var defaultPermanentCodes = []string{"UNREGISTERED", "INVALID_ARGUMENT"}

// Config holds the Firebase project and service-account credentials.
type Config struct {
	ProjectID       string
	CredentialsJSON string
	CredentialsFile string
	Endpoint        string
	PermanentCodes  []string

	// TokenSource overrides credential loading.
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
}

// Adapter implements delivery.TransportAdapter for the mobile-token transport.
type Adapter struct {
	client    *rest.Client
	path      string
	permanent map[string]struct{}
}

// New loads credentials and returns an adapter.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)

	source := cfg.TokenSource
	if source == nil {
		creds, err := loadCredentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		source = creds.TokenSource
		if projectID == "" {
			projectID = creds.ProjectID
		}
	}
	if projectID == "" {
		return nil, errors.New("fcm: project id is required")
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	authorised := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, source), Base: base.Transport},
		Timeout:   base.Timeout,
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	codes := cfg.PermanentCodes
	if len(codes) == 0 {
		codes = defaultPermanentCodes
	}
	permanent := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		permanent[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}

	return &Adapter{
		client:    rest.New(endpoint, authorised),
		path:      fmt.Sprintf("/v1/projects/%s/messages:send", projectID),
		permanent: permanent,
	}, nil
}

func loadCredentials(ctx context.Context, cfg Config) (*google.Credentials, error) {
	data := []byte(strings.TrimSpace(cfg.CredentialsJSON))
	if len(data) == 0 && strings.TrimSpace(cfg.CredentialsFile) != "" {
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("fcm: read credentials file: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, errors.New("fcm: service account credentials are required")
	}

	creds, err := google.CredentialsFromJSON(ctx, data, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("fcm: parse credentials: %w", err)
	}
	return creds, nil
}

// Transport implements delivery.TransportAdapter.
func (a *Adapter) Transport() string {
	return models.TransportMobileToken
}

type message struct {
	Token        string            `json:"token"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type sendRequest struct {
	Message message `json:"message"`
}

type errorReply struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// code returns the FCM-specific error code when present, else the generic status.
func (r errorReply) code() string {
	for _, detail := range r.Error.Details {
		if detail.Type == fcmErrorType && detail.ErrorCode != "" {
			return detail.ErrorCode
		}
	}
	return r.Error.Status
}

// Send posts one message to the token.
func (a *Adapter) Send(ctx context.Context, target delivery.Target) error {
	token, err := delivery.DecodeToken(target.Subscription.EndpointDescriptor)
	if err != nil {
		return &delivery.PermanentError{Transport: models.TransportMobileToken, Reason: "invalid descriptor", Err: err}
	}

	resp, err := a.client.PostJSON(ctx, a.path, nil, sendRequest{Message: buildMessage(token, target.Payload)})
	if err != nil {
		return fmt.Errorf("fcm: %w", err)
	}
	if resp.OK() {
		return nil
	}

	var reply errorReply
	_ = resp.Decode(&reply)
	code := reply.code()
	if _, ok := a.permanent[code]; ok {
		return delivery.Permanent(models.TransportMobileToken, resp.StatusCode, code)
	}
	return fmt.Errorf("fcm: send returned %d %s: %s", resp.StatusCode, code, reply.Error.Message)
}

func buildMessage(token string, payload delivery.Payload) message {
	data := map[string]string{"notificationId": payload.NotificationID}
	if payload.SenderLabel != "" {
		data["sender"] = payload.SenderLabel
	}
	if payload.URL != "" {
		data["url"] = payload.URL
	}
	return message{
		Token: token,
		Notification: notification{
			Title: payload.Title,
			Body:  payload.Body,
			Image: payload.Icon,
		},
		Data: data,
	}
}
