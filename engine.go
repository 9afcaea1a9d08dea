package authcore

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/metrics"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/password"
	"github.com/maintainpro/authcore/rbac"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

// LockoutStore tracks consecutive authentication failures per identifier.
// Implemented by [security.LockoutTracker] and [security.RedisLockout].
type LockoutStore interface {
	RecordFailure(ctx context.Context, identifier string) (bool, error)
	IsLocked(ctx context.Context, identifier string) (bool, error)
	TimeRemaining(ctx context.Context, identifier string) (time.Duration, error)
	Reset(ctx context.Context, identifier string) error
}

// Engine is the orchestrating service. Build it with [Builder]; all methods
// are safe for concurrent use once built.
type Engine struct {
	config   Config
	registry *rbac.Registry
	sessions *session.Manager
	hasher   *password.Hasher
	tokens   *jwt.Manager
	mfaSvc   *mfa.Service
	mfaChal  *mfa.ChallengeStore
	sender   mfa.Sender

	lockout LockoutStore
	threat  *security.ThreatDetector
	limiter *security.RateLimiter
	resets  *resetStore

	users   UserProvider
	auditor *audit.Logger
	metrics *metrics.Metrics
	log     zerolog.Logger

	// hashGate bounds concurrent argon2 work.
	hashGate chan struct{}
}

// Close drains the audit dispatcher. Call it on shutdown.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.auditor.Close()
}

// AuditDropped reports audit entries lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.auditor.Dropped()
}

// Sessions exposes the session manager for transport-level listing and
// administrative revocation.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Registry exposes the immutable role table.
func (e *Engine) Registry() *rbac.Registry { return e.registry }

// Auditor exposes the audit logger for transport-level queries and export.
func (e *Engine) Auditor() *audit.Logger { return e.auditor }

// Metrics exposes the collector set, nil when metrics were not configured.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Threat exposes the detector for administrative blacklisting.
func (e *Engine) Threat() *security.ThreatDetector { return e.threat }

// acquireHash blocks until an argon2 slot frees up or ctx is done.
func (e *Engine) acquireHash(ctx context.Context) error {
	select {
	case e.hashGate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) releaseHash() { <-e.hashGate }

// hashPassword runs the KDF under the worker gate and feeds the duration
// histogram.
func (e *Engine) hashPassword(ctx context.Context, plaintext string) (string, error) {
	if err := e.acquireHash(ctx); err != nil {
		return "", err
	}
	defer e.releaseHash()
	start := time.Now()
	hash, err := e.hasher.Hash(plaintext)
	e.observeHash(start)
	return hash, err
}

func (e *Engine) observeHash(start time.Time) {
	if e.metrics != nil {
		e.metrics.HashDuration.Observe(time.Since(start).Seconds())
	}
}
