package delivery

import (
	"sort"
	"time"
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomePermanent = "permanent"
	OutcomeTransient = "transient"
)

// TransportStats aggregates per-transport send results.
type TransportStats struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Permanent int `json:"permanent"`
	Transient int `json:"transient"`
}

// FailedTarget identifies one endpoint a send failed for.
type FailedTarget struct {
	SubscriptionID string `json:"subscriptionId"`
	Transport      string `json:"transport"`
	RecipientID    string `json:"recipientId"`
	Reason         string `json:"reason"`
}

// Report summarises one dispatch.
type Report struct {
	NotificationID    string                     `json:"notificationId"`
	Reason            string                     `json:"reason"`
	Recipients        int                        `json:"recipients"`
	Targets           int                        `json:"targets"`
	Transports        map[string]*TransportStats `json:"transports"`
	PermanentFailures []FailedTarget             `json:"permanentFailures,omitempty"`
	TransientFailures []FailedTarget             `json:"transientFailures,omitempty"`
	TransportErrors   map[string]string          `json:"transportErrors,omitempty"`
	LookupError       string                     `json:"lookupError,omitempty"`
	StartedAt         time.Time                  `json:"startedAt"`
	FinishedAt        time.Time                  `json:"finishedAt"`
}

func newReport(job Job, startedAt time.Time) Report {
	return Report{
		NotificationID: job.Payload.NotificationID,
		Reason:         job.Reason,
		Recipients:     len(job.Recipients),
		Transports:     make(map[string]*TransportStats),
		StartedAt:      startedAt,
	}
}

// Duration is the wall time the dispatch took.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Totals sums the per-transport counters.
func (r Report) Totals() TransportStats {
	var total TransportStats
	for _, stats := range r.Transports {
		total.Attempted += stats.Attempted
		total.Succeeded += stats.Succeeded
		total.Permanent += stats.Permanent
		total.Transient += stats.Transient
	}
	return total
}

// PermanentByTransport groups permanently failed subscription ids by transport with
// transports in sorted order.
func (r Report) PermanentByTransport() ([]string, map[string][]string) {
	grouped := make(map[string][]string)
	for _, failure := range r.PermanentFailures {
		if failure.SubscriptionID == "" {
			continue
		}
		grouped[failure.Transport] = append(grouped[failure.Transport], failure.SubscriptionID)
	}
	transports := make([]string, 0, len(grouped))
	for transport := range grouped {
		transports = append(transports, transport)
	}
	sort.Strings(transports)
	return transports, grouped
}

func (r *Report) stats(transport string) *TransportStats {
	stats, ok := r.Transports[transport]
	if !ok {
		stats = &TransportStats{}
		r.Transports[transport] = stats
	}
	return stats
}

func (r *Report) record(target Target, outcome string, reason string) {
	stats := r.stats(target.Subscription.Transport)
	stats.Attempted++

	failure := FailedTarget{
		SubscriptionID: target.Subscription.ID,
		Transport:      target.Subscription.Transport,
		RecipientID:    target.Subscription.RecipientID,
		Reason:         reason,
	}

	switch outcome {
	case OutcomeSuccess:
		stats.Succeeded++
	case OutcomePermanent:
		stats.Permanent++
		r.PermanentFailures = append(r.PermanentFailures, failure)
	default:
		stats.Transient++
		r.TransientFailures = append(r.TransientFailures, failure)
	}
}
