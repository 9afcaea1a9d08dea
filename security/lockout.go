package security

import (
	"context"
	"strings"
	"sync"
	"time"
)

// LockoutConfig tunes the failed-login counter.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	CounterTTL      time.Duration // how long a partial failure streak is remembered
}

// DefaultLockoutConfig mirrors the production MaintainPro deployment.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
		CounterTTL:      time.Hour,
	}
}

// LockoutRecord is the state held per identifier.
type LockoutRecord struct {
	Identifier  string
	Failures    int
	LastAttempt time.Time
	LockedUntil time.Time
}

// LockoutTracker counts failed logins per identifier and locks the
// identifier once the threshold is reached. Counters only ever increase
// until a success or lockout expiry resets them to zero.
type LockoutTracker struct {
	config LockoutConfig

	mu      sync.Mutex
	records map[string]*LockoutRecord
}

// NewLockoutTracker builds a tracker with the given thresholds.
func NewLockoutTracker(cfg LockoutConfig) *LockoutTracker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.CounterTTL <= 0 {
		cfg.CounterTTL = time.Hour
	}
	return &LockoutTracker{
		config:  cfg,
		records: make(map[string]*LockoutRecord),
	}
}

// RecordFailure increments the identifier's counter and reports whether the
// failure tripped the lockout threshold.
func (t *LockoutTracker) RecordFailure(_ context.Context, identifier string) (bool, error) {
	key := NormalizeIdentifier(identifier)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec == nil || t.stale(rec, now) {
		rec = &LockoutRecord{Identifier: key}
		t.records[key] = rec
	}

	rec.Failures++
	rec.LastAttempt = now
	if rec.Failures >= t.config.MaxAttempts && rec.LockedUntil.IsZero() {
		rec.LockedUntil = now.Add(t.config.LockoutDuration)
	}
	return !rec.LockedUntil.IsZero() && rec.LockedUntil.After(now), nil
}

// IsLocked reports whether the identifier is currently locked. A lockout past
// its expiry is lazily cleared on query.
func (t *LockoutTracker) IsLocked(_ context.Context, identifier string) (bool, error) {
	key := NormalizeIdentifier(identifier)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec == nil {
		return false, nil
	}
	if t.stale(rec, now) {
		delete(t.records, key)
		return false, nil
	}
	return rec.LockedUntil.After(now), nil
}

// TimeRemaining returns how long the identifier stays locked, zero when it is
// not locked.
func (t *LockoutTracker) TimeRemaining(_ context.Context, identifier string) (time.Duration, error) {
	key := NormalizeIdentifier(identifier)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.records[key]
	if rec == nil || !rec.LockedUntil.After(now) {
		return 0, nil
	}
	return rec.LockedUntil.Sub(now), nil
}

// Reset clears the identifier's counter after a successful authentication.
func (t *LockoutTracker) Reset(_ context.Context, identifier string) error {
	key := NormalizeIdentifier(identifier)
	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()
	return nil
}

// Sweep drops expired lockouts and stale partial streaks. Run from the
// periodic cleanup job.
func (t *LockoutTracker) Sweep(_ context.Context) (int, error) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, rec := range t.records {
		if t.stale(rec, now) {
			delete(t.records, key)
			removed++
		}
	}
	return removed, nil
}

// stale reports whether the record no longer constrains anything: its lockout
// ended, or an unlocked failure streak aged out.
func (t *LockoutTracker) stale(rec *LockoutRecord, now time.Time) bool {
	if !rec.LockedUntil.IsZero() {
		return !rec.LockedUntil.After(now)
	}
	return now.Sub(rec.LastAttempt) > t.config.CounterTTL
}

// NormalizeIdentifier canonicalizes a lockout key, e.g. "email:<addr>".
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
