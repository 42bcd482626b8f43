package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/charlesng35/fanout/internal/models"
	"github.com/charlesng35/fanout/pkg/logger"
	"github.com/charlesng35/fanout/pkg/metrics"
)

const (
	defaultSendConcurrency = 16
	defaultSendTimeout     = 10 * time.Second
)

// SubscriptionSource yields the current endpoints of a set of recipients.
type SubscriptionSource interface {
	ListForRecipients(ctx context.Context, recipientIDs []string) ([]models.Subscription, error)
}

// RateLimit throttles sends on one transport. A zero PerSecond disables limiting.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

// DispatcherConfig tunes the dispatcher.
type DispatcherConfig struct {
	Concurrency int
	SendTimeout time.Duration
	RateLimits  map[string]RateLimit
}

// Dispatcher pushes a job's payload to every registered endpoint of its recipients.
type Dispatcher struct {
	source      SubscriptionSource
	adapters    *AdapterRegistry
	concurrency int
	sendTimeout time.Duration
	limiters    map[string]*rate.Limiter
	now         func() time.Time
	log         *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(source SubscriptionSource, adapters *AdapterRegistry, cfg DispatcherConfig) (*Dispatcher, error) {
	if source == nil {
		return nil, errors.New("dispatcher: subscription source is required")
	}
	if adapters == nil {
		return nil, errors.New("dispatcher: adapter registry is required")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultSendConcurrency
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	limiters := make(map[string]*rate.Limiter, len(cfg.RateLimits))
	for transport, limit := range cfg.RateLimits {
		if limit.PerSecond <= 0 {
			continue
		}
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiters[transport] = rate.NewLimiter(rate.Limit(limit.PerSecond), burst)
	}

	return &Dispatcher{
		source:      source,
		adapters:    adapters,
		concurrency: concurrency,
		sendTimeout: timeout,
		limiters:    limiters,
		now:         time.Now,
		log:         logger.WithModule("dispatcher"),
	}, nil
}

// Dispatch reads the recipients' endpoints fresh and sends to each of them concurrently.
// Failures are recorded in the report; one target's failure never affects another's.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (report Report) {
	if ctx == nil {
		ctx = context.Background()
	}
	report = newReport(job, d.now())
	defer func() { report.FinishedAt = d.now() }()

	if len(job.Recipients) == 0 {
		return report
	}

	subscriptions, err := d.source.ListForRecipients(ctx, job.Recipients)
	if err != nil {
		report.LookupError = err.Error()
		d.log.Error("load subscriptions", zap.String("notification_id", job.Payload.NotificationID), zap.Error(err))
		return report
	}

	targets := make([]Target, 0, len(subscriptions))
	for _, sub := range subscriptions {
		targets = append(targets, Target{Subscription: sub, Payload: job.Payload})
		if _, err := d.adapters.Lookup(sub.Transport); err != nil {
			if report.TransportErrors == nil {
				report.TransportErrors = make(map[string]string)
			}
			report.TransportErrors[sub.Transport] = err.Error()
		}
	}
	report.Targets = len(targets)

	var mu sync.Mutex
	group := &errgroup.Group{}
	group.SetLimit(d.concurrency)

	for _, target := range targets {
		target := target
		group.Go(func() error {
			outcome, reason := d.send(ctx, target)

			mu.Lock()
			report.record(target, outcome, reason)
			mu.Unlock()

			metrics.DeliveryOutcomes.WithLabelValues(target.Subscription.Transport, outcome).Inc()
			return nil
		})
	}
	_ = group.Wait()

	sortFailures(report.PermanentFailures)
	sortFailures(report.TransientFailures)
	return report
}

// send performs one isolated delivery attempt and classifies the result.
func (d *Dispatcher) send(ctx context.Context, target Target) (outcome string, reason string) {
	transport := target.Subscription.Transport

	adapter, err := d.adapters.Lookup(transport)
	if err != nil {
		return OutcomeTransient, err.Error()
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("adapter panic",
				zap.String("transport", transport),
				zap.String("subscription_id", target.Subscription.ID),
				zap.Any("panic", r),
			)
			outcome, reason = OutcomeTransient, fmt.Sprintf("adapter panic: %v", r)
		}
	}()

	if limiter, ok := d.limiters[transport]; ok {
		if err := limiter.Wait(sendCtx); err != nil {
			return OutcomeTransient, fmt.Sprintf("rate limit wait: %v", err)
		}
	}

	started := d.now()
	err = adapter.Send(sendCtx, target)
	metrics.DeliveryLatency.WithLabelValues(transport).Observe(d.now().Sub(started).Seconds())

	switch {
	case err == nil:
		return OutcomeSuccess, ""
	case IsPermanent(err):
		d.log.Info("endpoint permanently rejected",
			zap.String("transport", transport),
			zap.String("subscription_id", target.Subscription.ID),
			zap.Error(err),
		)
		return OutcomePermanent, err.Error()
	default:
		d.log.Warn("transient delivery failure",
			zap.String("transport", transport),
			zap.String("subscription_id", target.Subscription.ID),
			zap.Error(err),
		)
		return OutcomeTransient, err.Error()
	}
}

func sortFailures(failures []FailedTarget) {
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Transport != failures[j].Transport {
			return failures[i].Transport < failures[j].Transport
		}
		return failures[i].SubscriptionID < failures[j].SubscriptionID
	})
}
