package audit

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the write side of the audit log. All Log* methods are
// non-blocking when the dispatcher is configured to drop on a full buffer;
// entries are redacted and risk-scored before they are queued.
type Logger struct {
	store Store
	disp  *dispatcher
	log   zerolog.Logger
	now   func() time.Time
}

// NewLogger wires a Logger to its store. A disabled dispatcher config makes
// writes synchronous.
func NewLogger(store Store, cfg DispatcherConfig, log zerolog.Logger) *Logger {
	return &Logger{
		store: store,
		disp:  newDispatcher(cfg, store, log),
		log:   log,
		now:   time.Now,
	}
}

// Record carries the caller-supplied fields of one audit event.
type Record struct {
	UserID     string
	SessionID  string
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]string
	IPAddress  string
	UserAgent  string
	Success    bool
	RiskLevel  RiskLevel
	Category   Category
}

// Log stamps, redacts and risk-scores the record, then queues it.
func (l *Logger) Log(ctx context.Context, rec Record) Entry {
	now := l.now().UTC()
	e := Entry{
		ID:         NewID(now),
		UserID:     rec.UserID,
		SessionID:  rec.SessionID,
		Action:     rec.Action,
		Resource:   rec.Resource,
		ResourceID: rec.ResourceID,
		Details:    Redact(rec.Details),
		IPAddress:  rec.IPAddress,
		UserAgent:  rec.UserAgent,
		Success:    rec.Success,
		RiskLevel:  rec.RiskLevel,
		Category:   rec.Category,
		Timestamp:  now,
	}
	if e.RiskLevel == "" {
		e.RiskLevel = InferRisk(e.Action, e.Success)
	}
	if e.Category == "" {
		e.Category = CategorySecurity
	}

	if l.disp != nil {
		l.disp.dispatch(ctx, e)
		return e
	}
	if err := l.store.Append(ctx, e); err != nil {
		l.log.Error().Err(err).Str("action", e.Action).Msg("audit append failed")
	}
	return e
}

// LogLogin records an authentication attempt outcome.
func (l *Logger) LogLogin(ctx context.Context, userID, action, ip, userAgent string, success bool, details map[string]string) Entry {
	return l.Log(ctx, Record{
		UserID:    userID,
		Action:    action,
		Resource:  "auth",
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   success,
		Category:  CategoryAuth,
	})
}

// LogMFAEvent records MFA enrollment and verification activity.
func (l *Logger) LogMFAEvent(ctx context.Context, userID, action, ip string, success bool, details map[string]string) Entry {
	return l.Log(ctx, Record{
		UserID:    userID,
		Action:    action,
		Resource:  "mfa",
		Details:   details,
		IPAddress: ip,
		Success:   success,
		Category:  CategoryMFA,
	})
}

// LogDataAccess records a permitted read or write against a resource.
func (l *Logger) LogDataAccess(ctx context.Context, userID, action, resource, resourceID string, success bool) Entry {
	return l.Log(ctx, Record{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Success:    success,
		Category:   CategoryAccess,
	})
}

// LogAdminAction records privileged operations such as role changes.
func (l *Logger) LogAdminAction(ctx context.Context, actorID, action, targetID string, success bool, details map[string]string) Entry {
	return l.Log(ctx, Record{
		UserID:     actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: targetID,
		Details:    details,
		Success:    success,
		RiskLevel:  RiskHigh,
		Category:   CategoryAdmin,
	})
}

// LogSecurityEvent records detector and lockout activity.
func (l *Logger) LogSecurityEvent(ctx context.Context, action, ip string, risk RiskLevel, details map[string]string) Entry {
	return l.Log(ctx, Record{
		Action:    action,
		Details:   details,
		IPAddress: ip,
		Success:   false,
		RiskLevel: risk,
		Category:  CategorySecurity,
	})
}

// Query reads the log through the underlying store.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, int, error) {
	return l.store.Query(ctx, f)
}

// Stats aggregates the window [since, now].
func (l *Logger) Stats(ctx context.Context, since time.Time) (Stats, error) {
	return ComputeStats(ctx, l.store, since)
}

// SecurityAlerts returns recent high and critical entries, newest first.
func (l *Logger) SecurityAlerts(ctx context.Context, since time.Time, limit int) ([]Entry, error) {
	return SecurityAlerts(ctx, l.store, since, limit)
}

// Export streams matching entries to w in the requested format.
func (l *Logger) Export(ctx context.Context, f Filter, format ExportFormat, w io.Writer) error {
	return Export(ctx, l.store, f, format, w)
}

// Prune removes entries older than the cutoff.
func (l *Logger) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	return l.store.Prune(ctx, olderThan)
}

// Dropped reports entries lost to buffer saturation since startup.
func (l *Logger) Dropped() uint64 {
	return l.disp.Dropped()
}

// Close drains the dispatch buffer and stops the worker.
func (l *Logger) Close() {
	l.disp.Close()
}
