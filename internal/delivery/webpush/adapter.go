// Package webpush delivers payloads to browser push subscriptions using VAPID.
package webpush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	wp "github.com/SherClockHolmes/webpush-go"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/models"
)

const defaultTTL = 24 * 60 * 60

// Config holds the VAPID identity and delivery options.
type Config struct {
	VAPIDPublicKey    string
	VAPIDPrivateKey   string
	Subscriber        string
	TTL               int
	Urgency           string
	PermanentStatuses []int
	HTTPClient        wp.HTTPClient
}

// Keys are the client keys from PushSubscription.getKey().
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Descriptor is the stored form of a browser PushSubscription.
type Descriptor struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// ParseDescriptor decodes and validates a webpush endpoint descriptor.
func ParseDescriptor(raw []byte) (Descriptor, error) {
	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return Descriptor{}, fmt.Errorf("webpush: decode descriptor: %w", err)
	}
	desc.Endpoint = strings.TrimSpace(desc.Endpoint)
	desc.Keys.P256dh = strings.TrimSpace(desc.Keys.P256dh)
	desc.Keys.Auth = strings.TrimSpace(desc.Keys.Auth)

	if desc.Endpoint == "" {
		return Descriptor{}, errors.New("webpush: endpoint is required")
	}
	parsed, err := url.Parse(desc.Endpoint)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		return Descriptor{}, errors.New("webpush: endpoint must be an absolute http(s) url")
	}
	if desc.Keys.P256dh == "" || desc.Keys.Auth == "" {
		return Descriptor{}, errors.New("webpush: keys.p256dh and keys.auth are required")
	}
	return desc, nil
}

// Adapter implements delivery.TransportAdapter for the webpush transport.
type Adapter struct {
	options   wp.Options
	permanent delivery.StatusSet
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	if strings.TrimSpace(cfg.VAPIDPublicKey) == "" || strings.TrimSpace(cfg.VAPIDPrivateKey) == "" {
		return nil, errors.New("webpush: vapid key pair is required")
	}
	if strings.TrimSpace(cfg.Subscriber) == "" {
		return nil, errors.New("webpush: subscriber contact is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	urgency := wp.Urgency(strings.ToLower(strings.TrimSpace(cfg.Urgency)))
	if urgency == "" {
		urgency = wp.UrgencyNormal
	}

	return &Adapter{
		options: wp.Options{
			HTTPClient:      cfg.HTTPClient,
			Subscriber:      strings.TrimSpace(cfg.Subscriber),
			TTL:             ttl,
			Urgency:         urgency,
			VAPIDPublicKey:  strings.TrimSpace(cfg.VAPIDPublicKey),
			VAPIDPrivateKey: strings.TrimSpace(cfg.VAPIDPrivateKey),
		},
		permanent: delivery.NewStatusSet(cfg.PermanentStatuses, http.StatusNotFound, http.StatusGone),
	}, nil
}

// Transport implements delivery.TransportAdapter.
func (a *Adapter) Transport() string {
	return models.TransportWebPush
}

// Send encrypts the payload for the subscription and posts it to the push service.
func (a *Adapter) Send(ctx context.Context, target delivery.Target) error {
	desc, err := ParseDescriptor(target.Subscription.EndpointDescriptor)
	if err != nil {
		return &delivery.PermanentError{Transport: models.TransportWebPush, Reason: "invalid descriptor", Err: err}
	}

	message, err := target.Payload.JSON()
	if err != nil {
		return fmt.Errorf("webpush: encode payload: %w", err)
	}

	options := a.options
	resp, err := wp.SendNotificationWithContext(ctx, message, &wp.Subscription{
		Endpoint: desc.Endpoint,
		Keys:     wp.Keys{Auth: desc.Keys.Auth, P256dh: desc.Keys.P256dh},
	}, &options)
	if err != nil {
		return fmt.Errorf("webpush: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	reason := strings.TrimSpace(string(detail))
	if a.permanent.Contains(resp.StatusCode) {
		return delivery.Permanent(models.TransportWebPush, resp.StatusCode, reason)
	}
	return fmt.Errorf("webpush: push service returned %d: %s", resp.StatusCode, reason)
}
