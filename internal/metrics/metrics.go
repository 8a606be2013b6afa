// Package metrics counts session lifecycle events. The in-memory recorder
// serves tests; the Prometheus recorder backs the /metrics endpoint.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event names recorded by the session kit.
const (
	EventLoginSuccess    = "login_success"
	EventLoginFailure    = "login_failure"
	EventSignupSuccess   = "signup_success"
	EventSignupFailure   = "signup_failure"
	EventLogout          = "logout"
	EventRefreshSuccess  = "refresh_success"
	EventRefreshFailure  = "refresh_failure"
	EventGuardRedirect   = "guard_redirect"
	EventGuardRoleBounce = "guard_role_bounce"
)

// Recorder increments counters for session events.
type Recorder interface {
	Increment(event string)
}

// CounterRecorder implements Recorder with in-memory counts.
type CounterRecorder struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterRecorder constructs an in-memory recorder.
func NewCounterRecorder() *CounterRecorder {
	return &CounterRecorder{counts: make(map[string]int64)}
}

// Increment increases the counter for the given event.
func (recorder *CounterRecorder) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

// Count returns the current value for the given event.
func (recorder *CounterRecorder) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

// Snapshot returns a copy of all recorded counters.
func (recorder *CounterRecorder) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}

// PrometheusRecorder implements Recorder on a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// NewPrometheusRecorder constructs a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classgate",
		Subsystem: "session",
		Name:      "events_total",
		Help:      "Session lifecycle events by name.",
	}, []string{"event"})
	registry.MustRegister(events)
	return &PrometheusRecorder{registry: registry, events: events}
}

// Increment increases the counter for the given event.
func (recorder *PrometheusRecorder) Increment(event string) {
	recorder.events.WithLabelValues(event).Inc()
}

// Handler exposes the registry in Prometheus exposition format.
func (recorder *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{})
}
