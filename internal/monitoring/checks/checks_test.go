package checks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	testutil "github.com/charlesng35/fanout/internal/database/testutil"
	"github.com/charlesng35/fanout/internal/monitoring"
)

type fakeQueue struct {
	depth, capacity int
	closed          bool
}

func (q fakeQueue) Len() int     { return q.depth }
func (q fakeQueue) Cap() int     { return q.capacity }
func (q fakeQueue) Closed() bool { return q.closed }

type fakeRegistry struct {
	active   []string
	failures map[string]error
}

func (r fakeRegistry) Transports() []string       { return r.active }
func (r fakeRegistry) Failures() map[string]error { return r.failures }

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := Database(db, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = Database(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
}

func TestRedisCheckWithoutClientIsDegraded(t *testing.T) {
	result := Redis(nil, 0).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
}

func TestDispatchQueueCheck(t *testing.T) {
	cases := []struct {
		name  string
		queue QueueObserver
		want  monitoring.ProbeStatus
	}{
		{name: "idle", queue: fakeQueue{depth: 0, capacity: 10}, want: monitoring.StatusUp},
		{name: "backlogged", queue: fakeQueue{depth: 9, capacity: 10}, want: monitoring.StatusDegraded},
		{name: "closed", queue: fakeQueue{capacity: 10, closed: true}, want: monitoring.StatusDown},
		{name: "missing", queue: nil, want: monitoring.StatusDown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := DispatchQueue(tc.queue).Run(context.Background())
			require.Equal(t, tc.want, result.Status)
		})
	}
}

func TestTransportsCheck(t *testing.T) {
	result := Transports(fakeRegistry{active: []string{"webpush"}}).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)
	require.Equal(t, "webpush", result.Details)

	result = Transports(fakeRegistry{}).Run(context.Background())
	require.Equal(t, monitoring.StatusUp, result.Status)

	result = Transports(fakeRegistry{failures: map[string]error{
		"relay-service": errors.New("app id is required"),
		"mobile-token":  errors.New("project id is required"),
	}}).Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Equal(t, "mobile-token: project id is required; relay-service: app id is required", result.Details)
}
