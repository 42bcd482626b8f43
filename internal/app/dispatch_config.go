package app

import (
	"strings"

	"github.com/charlesng35/fanout/internal/delivery"
	"github.com/charlesng35/fanout/internal/delivery/fcm"
	"github.com/charlesng35/fanout/internal/delivery/onesignal"
	"github.com/charlesng35/fanout/internal/delivery/webpush"
	"github.com/charlesng35/fanout/internal/events"
	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/internal/services"
)

// DispatchMode returns the configured mode, defaulting to direct.
func (c DispatchConfig) DispatchMode() services.DispatchMode {
	if strings.EqualFold(strings.TrimSpace(c.Mode), string(services.DispatchModeEvents)) {
		return services.DispatchModeEvents
	}
	return services.DispatchModeDirect
}

// QueueConfig converts DispatchConfig into the worker pool settings.
func (c DispatchConfig) QueueConfig() delivery.QueueConfig {
	return delivery.QueueConfig{
		Workers:    c.Workers,
		Size:       c.QueueSize,
		JobTimeout: c.JobTimeout,
	}
}

// DispatcherConfig combines dispatch tuning with the per-transport rate limits.
func (c Config) DispatcherConfig() delivery.DispatcherConfig {
	limits := make(map[string]delivery.RateLimit)
	add := func(transport string, rate TransportRate) {
		if rate.RatePerSecond > 0 {
			limits[transport] = delivery.RateLimit{PerSecond: rate.RatePerSecond, Burst: rate.Burst}
		}
	}
	add(models.TransportWebPush, c.Transports.WebPush.TransportRate)
	add(models.TransportMobileToken, c.Transports.FCM.TransportRate)
	add(models.TransportRelay, c.Transports.OneSignal.TransportRate)

	return delivery.DispatcherConfig{
		Concurrency: c.Dispatch.SendConcurrency,
		SendTimeout: c.Dispatch.SendTimeout,
		RateLimits:  limits,
	}
}

// PayloadDefaults returns the icon and URL added to push payloads.
func (c DispatchConfig) PayloadDefaults() services.PayloadDefaults {
	return services.PayloadDefaults{
		Icon: strings.TrimSpace(c.DefaultIcon),
		URL:  strings.TrimSpace(c.DefaultURL),
	}
}

// AdapterConfig converts WebPushConfig into the adapter configuration.
func (c WebPushConfig) AdapterConfig() webpush.Config {
	return webpush.Config{
		VAPIDPublicKey:    strings.TrimSpace(c.VAPIDPublicKey),
		VAPIDPrivateKey:   strings.TrimSpace(c.VAPIDPrivateKey),
		Subscriber:        strings.TrimSpace(c.Subscriber),
		TTL:               c.TTL,
		Urgency:           c.Urgency,
		PermanentStatuses: c.PermanentStatuses,
	}
}

// AdapterConfig converts FCMConfig into the adapter configuration.
func (c FCMConfig) AdapterConfig() fcm.Config {
	return fcm.Config{
		ProjectID:       strings.TrimSpace(c.ProjectID),
		CredentialsJSON: c.CredentialsJSON,
		CredentialsFile: strings.TrimSpace(c.CredentialsFile),
		Endpoint:        strings.TrimSpace(c.Endpoint),
		PermanentCodes:  c.PermanentCodes,
	}
}

// AdapterConfig converts OneSignalConfig into the adapter configuration.
func (c OneSignalConfig) AdapterConfig() onesignal.Config {
	return onesignal.Config{
		AppID:    strings.TrimSpace(c.AppID),
		APIKey:   strings.TrimSpace(c.APIKey),
		Endpoint: strings.TrimSpace(c.Endpoint),
	}
}

// Settings converts AMQPConfig into consumer settings.
func (c AMQPConfig) Settings() events.AMQPSettings {
	return events.AMQPSettings{
		URI:          strings.TrimSpace(c.URI),
		ExchangeName: strings.TrimSpace(c.ExchangeName),
		ExchangeType: strings.TrimSpace(c.ExchangeType),
		QueueName:    strings.TrimSpace(c.QueueName),
		RoutingKey:   strings.TrimSpace(c.RoutingKey),
		Prefetch:     c.Prefetch,
	}
}
