package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// NotificationsSent counts committed notifications by kind (broadcast|targeted).
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_notifications_sent_total",
			Help: "Total number of notifications committed to the ledger",
		},
		[]string{"kind"},
	)

	// LedgerEntries counts fan-out rows written.
	LedgerEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_ledger_entries_total",
			Help: "Total number of fan-out ledger entries written",
		},
	)

	// DeliveryOutcomes counts per-target send results (success|permanent|transient).
	DeliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_delivery_outcomes_total",
			Help: "Push delivery attempts by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	// DeliveryLatency measures individual adapter sends.
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_delivery_latency_seconds",
			Help:    "Latency of a single push send",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// EndpointEvictions counts subscriptions removed after permanent failures.
	EndpointEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_endpoint_evictions_total",
			Help: "Subscriptions evicted after permanent delivery failures",
		},
		[]string{"transport"},
	)

	// DispatchQueueDepth tracks jobs waiting for a dispatch worker.
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_dispatch_queue_depth",
			Help: "Number of dispatch jobs waiting in the queue",
		},
	)

	// DroppedJobs counts dispatch jobs that could not be queued.
	DroppedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_dispatch_dropped_jobs_total",
			Help: "Dispatch jobs rejected by the queue",
		},
		[]string{"reason"},
	)

	// RealtimeConnections tracks open websocket streams.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fanout_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)
)
