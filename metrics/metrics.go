// Package metrics exposes the auth core's operational counters in
// Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one engine instance. All fields are safe
// for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts   *prometheus.CounterVec
	Lockouts        prometheus.Counter
	ThreatBlocks    *prometheus.CounterVec
	RefreshTotal    *prometheus.CounterVec
	AccessChecks    *prometheus.CounterVec
	SessionsCreated prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	MFAVerified     *prometheus.CounterVec
	PasswordResets  *prometheus.CounterVec
	HashDuration    prometheus.Histogram
}

// New builds and registers the collector set on a private registry so two
// engines in one process never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"result"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_lockouts_total",
			Help: "Accounts locked after repeated failures.",
		}),
		ThreatBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_threat_blocks_total",
			Help: "Requests blocked by the threat detector, by reason.",
		}, []string{"reason"}),
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_token_refresh_total",
			Help: "Refresh token exchanges by outcome.",
		}, []string{"result"}),
		AccessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_access_checks_total",
			Help: "Authorization decisions by outcome.",
		}, []string{"decision"}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authcore_sessions_created_total",
			Help: "Sessions created.",
		}),
		SessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_sessions_ended_total",
			Help: "Sessions ended, by cause.",
		}, []string{"cause"}),
		MFAVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_mfa_verifications_total",
			Help: "MFA verifications by method and outcome.",
		}, []string{"method", "result"}),
		PasswordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_password_resets_total",
			Help: "Password reset flow events.",
		}, []string{"stage"}),
		HashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authcore_password_hash_duration_seconds",
			Help:    "Wall time spent hashing or verifying passwords.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.LoginAttempts, m.Lockouts, m.ThreatBlocks, m.RefreshTotal,
		m.AccessChecks, m.SessionsCreated, m.SessionsEnded, m.MFAVerified,
		m.PasswordResets, m.HashDuration,
	)
	return m
}

// RegisterAuditDropped exposes the dispatcher's drop counter as a gauge.
func (m *Metrics) RegisterAuditDropped(fn func() uint64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "authcore_audit_dropped_total",
		Help: "Audit entries dropped due to dispatcher backpressure.",
	}, func() float64 { return float64(fn()) }))
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
