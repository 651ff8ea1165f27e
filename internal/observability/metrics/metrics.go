// Package metrics registers the Prometheus collectors for tourbook.
// Every recorder method is safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Auth event kinds.
const (
	EventSignedIn  = "signed_in"
	EventSignedOut = "signed_out"
)

// Role resolution sources.
const (
	RoleSourceFetch   = "fetch"
	RoleSourceCache   = "cache"
	RoleSourceDefault = "default"
)

const namespace = "tourbook"

// Metrics groups every collector the auth component emits.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	Navigations     *prometheus.CounterVec
	AuthEvents      *prometheus.CounterVec
	TokenRefresh    *prometheus.CounterVec
	RoleResolutions *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	GuardDecisions  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Backend requests sent through the gateway by method and status class",
		}, []string{"method", "class"}),

		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Backend request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),

		Navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Forced navigations by destination",
		}, []string{"target"}),

		AuthEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Auth-state change events processed by session stores",
		}, []string{"kind"}),

		TokenRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_refresh_total",
			Help:      "Forced credential refreshes requested from the identity provider",
		}, []string{"result"}),

		RoleResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roles",
			Name:      "resolutions_total",
			Help:      "Role resolutions by source and resulting role",
		}, []string{"source", "role"}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Session stores currently alive",
		}),

		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Route guard decisions by kind",
		}, []string{"kind"}),
	}
}

// StatusClass buckets an HTTP status into 2xx..5xx; zero means the request never got a response.
func StatusClass(status int) string {
	if status <= 0 {
		return "transport_error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// ObserveGateway records one backend round trip.
func (m *Metrics) ObserveGateway(method string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(method, StatusClass(status)).Inc()
	m.GatewayDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

// IncNavigation records a forced navigation.
func (m *Metrics) IncNavigation(target string) {
	if m == nil {
		return
	}
	m.Navigations.WithLabelValues(target).Inc()
}

// IncAuthEvent records a processed auth-state change.
func (m *Metrics) IncAuthEvent(kind string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(kind).Inc()
}

// IncTokenRefresh records a forced credential refresh.
func (m *Metrics) IncTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefresh.WithLabelValues(result).Inc()
}

// IncRoleResolution records where a role came from.
func (m *Metrics) IncRoleResolution(source, role string) {
	if m == nil {
		return
	}
	m.RoleResolutions.WithLabelValues(source, role).Inc()
}

// SessionOpened and SessionClosed track live session stores.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// IncGuardDecision records a route guard outcome.
func (m *Metrics) IncGuardDecision(kind string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(kind).Inc()
}
