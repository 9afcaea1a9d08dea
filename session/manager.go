package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes session lifecycle policy.
type Config struct {
	TTL              time.Duration
	RememberMeTTL    time.Duration
	MaxPerUser       int
	SuspiciousIPs    int           // distinct recent IPs beyond which a login is flagged
	SuspiciousWindow time.Duration // rolling window for the heuristic
}

// DefaultConfig mirrors the production MaintainPro deployment.
func DefaultConfig() Config {
	return Config{
		TTL:              8 * time.Hour,
		RememberMeTTL:    30 * 24 * time.Hour,
		MaxPerUser:       5,
		SuspiciousIPs:    2,
		SuspiciousWindow: 15 * time.Minute,
	}
}

// CreateParams describes a login about to receive a session.
type CreateParams struct {
	UserID     string
	IPAddress  string
	UserAgent  string
	Location   string
	RememberMe bool
}

// CreateResult is the new session plus heuristic findings.
type CreateResult struct {
	Session    Session
	Suspicious bool
	RecentIPs  []string
	Evicted    []string // ids removed by the concurrent-session cap
}

// Manager applies lifecycle policy on top of a Store.
type Manager struct {
	config Config
	store  Store

	// ipMu guards the per-user rolling IP history behind the
	// suspicious-location heuristic.
	ipMu      sync.Mutex
	recentIPs map[string][]ipSeen
}

type ipSeen struct {
	ip string
	at time.Time
}

// NewManager validates config and wraps the store.
func NewManager(cfg Config, store Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}
	if cfg.RememberMeTTL < cfg.TTL {
		cfg.RememberMeTTL = cfg.TTL
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 5
	}
	if cfg.SuspiciousWindow <= 0 {
		cfg.SuspiciousWindow = 15 * time.Minute
	}
	return &Manager{
		config:    cfg,
		store:     store,
		recentIPs: make(map[string][]ipSeen),
	}, nil
}

// Create inserts a session for the user, evicting the least-recently-accessed
// session first when the user is at the concurrent cap. The suspicious flag
// reports an unusual spread of recent source addresses; it never blocks.
func (m *Manager) Create(ctx context.Context, p CreateParams) (CreateResult, error) {
	now := time.Now()
	ttl := m.config.TTL
	if p.RememberMe {
		ttl = m.config.RememberMeTTL
	}

	suspicious, recent := m.recordIP(p.UserID, p.IPAddress, now)

	evicted, err := m.enforceCap(ctx, p.UserID)
	if err != nil {
		return CreateResult{}, err
	}

	s := Session{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		Device:         ParseUserAgent(p.UserAgent),
		IPAddress:      p.IPAddress,
		Location:       p.Location,
		Active:         true,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return CreateResult{}, fmt.Errorf("create session: %w", err)
	}

	return CreateResult{
		Session:    s,
		Suspicious: suspicious,
		RecentIPs:  recent,
		Evicted:    evicted,
	}, nil
}

// Validate resolves id to an active, unexpired session and touches its
// last-accessed time. Not-found, inactive, and expired are distinct outcomes;
// an expired row is torn down before ErrExpired is returned.
func (m *Manager) Validate(ctx context.Context, id string) (Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.Active {
		return Session{}, ErrInactive
	}
	if s.Expired(time.Now()) {
		_ = m.store.Delete(ctx, id)
		return Session{}, ErrExpired
	}

	s.LastAccessedAt = time.Now()
	if err := m.store.Update(ctx, s); err != nil && !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	return s, nil
}

// Refresh extends the session's expiry from now and touches last-accessed.
func (m *Manager) Refresh(ctx context.Context, id string, rememberMe bool) (Session, error) {
	s, err := m.Validate(ctx, id)
	if err != nil {
		return Session{}, err
	}
	ttl := m.config.TTL
	if rememberMe {
		ttl = m.config.RememberMeTTL
	}
	s.ExpiresAt = time.Now().Add(ttl)
	if err := m.store.Update(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// End terminates one session. Idempotent: ending a missing session is not an
// error for the caller's logout flow.
func (m *Manager) End(ctx context.Context, id string) error {
	err := m.store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// EndAllForUser terminates every session the user holds. Used after password
// resets and administrative revocations.
func (m *Manager) EndAllForUser(ctx context.Context, userID string) (int, error) {
	return m.store.DeleteByUser(ctx, userID)
}

// ListForUser returns the user's current sessions.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	return m.store.ListByUser(ctx, userID)
}

// SweepExpired removes expired rows and trims stale heuristic state. Run
// from the periodic cleanup job.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()

	m.ipMu.Lock()
	for userID, seen := range m.recentIPs {
		trimmed := trimWindow(seen, now.Add(-m.config.SuspiciousWindow))
		if len(trimmed) == 0 {
			delete(m.recentIPs, userID)
		} else {
			m.recentIPs[userID] = trimmed
		}
	}
	m.ipMu.Unlock()

	return m.store.SweepExpired(ctx, now)
}

// recordIP updates the rolling IP history and reports whether the count of
// distinct prior addresses, excluding the current one, exceeds the threshold.
func (m *Manager) recordIP(userID, ip string, now time.Time) (bool, []string) {
	if ip == "" {
		return false, nil
	}

	m.ipMu.Lock()
	defer m.ipMu.Unlock()

	seen := trimWindow(m.recentIPs[userID], now.Add(-m.config.SuspiciousWindow))

	distinct := make(map[string]struct{}, len(seen))
	for _, entry := range seen {
		if entry.ip != ip {
			distinct[entry.ip] = struct{}{}
		}
	}

	seen = append(seen, ipSeen{ip: ip, at: now})
	m.recentIPs[userID] = seen

	recent := make([]string, 0, len(distinct))
	for addr := range distinct {
		recent = append(recent, addr)
	}
	sort.Strings(recent)

	return len(distinct) > m.config.SuspiciousIPs, recent
}

func (m *Manager) enforceCap(ctx context.Context, userID string) ([]string, error) {
	sessions, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) < m.config.MaxPerUser {
		return nil, nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastAccessedAt.Before(sessions[j].LastAccessedAt)
	})

	var evicted []string
	for i := 0; i <= len(sessions)-m.config.MaxPerUser; i++ {
		if err := m.store.Delete(ctx, sessions[i].ID); err != nil && !errors.Is(err, ErrNotFound) {
			return evicted, err
		}
		evicted = append(evicted, sessions[i].ID)
	}
	return evicted, nil
}

func trimWindow(seen []ipSeen, cutoff time.Time) []ipSeen {
	keep := seen[:0]
	for _, entry := range seen {
		if entry.at.After(cutoff) {
			keep = append(keep, entry)
		}
	}
	return keep
}
