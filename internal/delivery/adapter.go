package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// TransportAdapter pushes a payload to one endpoint of a single transport.
// Send returns nil on acceptance, a *PermanentError when the endpoint is gone for good,
// and any other error for failures worth trying again on a later dispatch.
type TransportAdapter interface {
	Transport() string
	Send(ctx context.Context, target Target) error
}

// PermanentError marks an endpoint that will never accept deliveries again.
type PermanentError struct {
	Transport  string
	StatusCode int
	Reason     string
	Err        error
}

func (e *PermanentError) Error() string {
	msg := fmt.Sprintf("%s: endpoint permanently rejected", e.Transport)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent builds a PermanentError.
func Permanent(transport string, statusCode int, reason string) error {
	return &PermanentError{Transport: transport, StatusCode: statusCode, Reason: reason}
}

// IsPermanent reports whether err classifies the endpoint as gone.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// StatusSet is a configurable set of HTTP status codes a transport treats as permanent.
type StatusSet map[int]struct{}

// NewStatusSet builds a StatusSet from codes, falling back to defaults when codes is empty.
func NewStatusSet(codes []int, defaults ...int) StatusSet {
	if len(codes) == 0 {
		codes = defaults
	}
	set := make(StatusSet, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return set
}

// Contains reports whether code is in the set.
func (s StatusSet) Contains(code int) bool {
	_, ok := s[code]
	return ok
}

// AdapterRegistry maps transport names to adapters. Transports whose adapter could not be
// built keep their configuration error so dispatches can report it.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]TransportAdapter
	failures map[string]error
}

// ErrNoAdapter is returned for transports nobody registered.
var ErrNoAdapter = errors.New("delivery: no adapter registered for transport")

// NewAdapterRegistry constructs an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]TransportAdapter),
		failures: make(map[string]error),
	}
}

// Register adds or replaces the adapter for its transport.
func (r *AdapterRegistry) Register(adapter TransportAdapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Transport()] = adapter
	delete(r.failures, adapter.Transport())
}

// RegisterFailure records that the adapter for transport could not be configured.
func (r *AdapterRegistry) RegisterFailure(transport string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, transport)
	r.failures[transport] = err
}

// Lookup returns the adapter for transport or the reason it is unavailable.
func (r *AdapterRegistry) Lookup(transport string) (TransportAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[transport]; ok {
		return adapter, nil
	}
	if err, ok := r.failures[transport]; ok {
		return nil, err
	}
	return nil, fmt.Errorf("%w %q", ErrNoAdapter, transport)
}

// Transports lists transports with a working adapter, sorted.
func (r *AdapterRegistry) Transports() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failures returns a copy of the recorded configuration errors.
func (r *AdapterRegistry) Failures() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}
