package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charlesng35/fanout/internal/monitoring"
)

// QueueObserver exposes the dispatch queue state.
type QueueObserver interface {
	Len() int
	Cap() int
	Closed() bool
}

// backlogThreshold is the fill ratio above which the queue is reported as degraded.
const backlogThreshold = 0.9

// DispatchQueue reports down once the queue is closed and degraded when it is nearly full,
// since further submissions will be rejected.
func DispatchQueue(queue QueueObserver) monitoring.Check {
	return monitoring.NewCheck("dispatch_queue", func(context.Context) monitoring.ProbeResult {
		if queue == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "dispatch queue not configured"}
		}
		if queue.Closed() {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "dispatch queue closed"}
		}

		depth, capacity := queue.Len(), queue.Cap()
		details := fmt.Sprintf("%d/%d queued", depth, capacity)
		if capacity > 0 && float64(depth) >= float64(capacity)*backlogThreshold {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: details}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
	})
}

// TransportObserver exposes push transport configuration errors.
type TransportObserver interface {
	Transports() []string
	Failures() map[string]error
}

// Transports reports degraded when an enabled transport failed to configure. Sends to
// its endpoints fail until the configuration is fixed.
func Transports(registry TransportObserver) monitoring.Check {
	return monitoring.NewCheck("transports", func(context.Context) monitoring.ProbeResult {
		if registry == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "no transport registry"}
		}

		failures := registry.Failures()
		if len(failures) == 0 {
			active := registry.Transports()
			if len(active) == 0 {
				return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no push transports enabled"}
			}
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: strings.Join(active, ", ")}
		}

		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s: %v", name, failures[name]))
		}
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: strings.Join(parts, "; ")}
	})
}
