package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, cfg DispatcherConfig) (*Logger, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore(0)
	l := NewLogger(st, cfg, zerolog.Nop())
	t.Cleanup(l.Close)
	return l, st
}

func TestLogRedactsSensitiveDetails(t *testing.T) {
	l, st := newTestLogger(t, DispatcherConfig{})

	e := l.Log(context.Background(), Record{
		UserID:  "u1",
		Action:  "login_failure",
		Details: map[string]string{"password": "demo123", "resetToken": "abc", "reason": "bad password"},
	})

	require.Equal(t, "[REDACTED]", e.Details["password"])
	require.Equal(t, "[REDACTED]", e.Details["resetToken"])
	require.Equal(t, "bad password", e.Details["reason"])

	got, total, err := st.Query(context.Background(), Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "[REDACTED]", got[0].Details["password"])
}

func TestLogInfersRiskAndCategory(t *testing.T) {
	l, _ := newTestLogger(t, DispatcherConfig{})
	ctx := context.Background()

	require.Equal(t, RiskCritical, l.Log(ctx, Record{Action: "account_lockout"}).RiskLevel)
	require.Equal(t, RiskHigh, l.Log(ctx, Record{Action: "role_change", Success: true}).RiskLevel)
	require.Equal(t, RiskMedium, l.Log(ctx, Record{Action: "login_failure"}).RiskLevel)
	require.Equal(t, RiskLow, l.Log(ctx, Record{Action: "login_success", Success: true}).RiskLevel)
	require.Equal(t, CategorySecurity, l.Log(ctx, Record{Action: "x"}).Category)
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	st := NewMemoryStore(0)
	l := NewLogger(st, DispatcherConfig{Enabled: true, BufferSize: 64}, zerolog.Nop())

	for i := 0; i < 50; i++ {
		l.Log(context.Background(), Record{Action: "login_success", Success: true})
	}
	l.Close()

	_, total, err := st.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Equal(t, 50, total)
	require.Zero(t, l.Dropped())
}

// blockingStore stalls Append until released so the dispatch buffer fills.
type blockingStore struct {
	MemoryStore
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Append(ctx context.Context, e Entry) error {
	<-b.release
	return b.MemoryStore.Append(ctx, e)
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	bs := &blockingStore{release: make(chan struct{})}
	l := NewLogger(bs, DispatcherConfig{Enabled: true, BufferSize: 2, DropIfFull: true}, zerolog.Nop())

	for i := 0; i < 10; i++ {
		l.Log(context.Background(), Record{Action: "login_success", Success: true})
	}
	require.NotZero(t, l.Dropped())

	close(bs.release)
	l.Close()
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	st := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		e := Entry{
			ID:        NewID(at),
			UserID:    "u1",
			Action:    "work_order_viewed",
			Resource:  "work_orders",
			Success:   true,
			RiskLevel: RiskLow,
			Category:  CategoryAccess,
			Timestamp: at,
		}
		if i%5 == 0 {
			e.UserID = "u2"
		}
		require.NoError(t, st.Append(ctx, e))
	}

	page, total, err := st.Query(ctx, Filter{UserID: "u1", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 20, total)
	require.Len(t, page, 10)
	require.True(t, page[0].Timestamp.After(page[9].Timestamp), "newest first")

	page2, _, err := st.Query(ctx, Filter{UserID: "u1", Page: 3, PageSize: 8})
	require.NoError(t, err)
	require.Len(t, page2, 4)

	none, total, err := st.Query(ctx, Filter{UserID: "u1", Page: 9})
	require.NoError(t, err)
	require.Equal(t, 20, total)
	require.Empty(t, none)
}

func TestMemoryStoreBoundAndPrune(t *testing.T) {
	st := NewMemoryStore(10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, st.Append(ctx, Entry{ID: NewID(at), Action: "a", Timestamp: at}))
	}
	_, total, err := st.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 10, total)

	removed, err := st.Prune(ctx, base.Add(12*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 7, removed)

	_, total, err = st.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 3, total)
}

func TestComputeStats(t *testing.T) {
	st := NewMemoryStore(0)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(userID, ip, action string, success bool, cat Category, risk RiskLevel) {
		require.NoError(t, st.Append(ctx, Entry{
			ID: NewID(now), UserID: userID, IPAddress: ip, Action: action,
			Success: success, Category: cat, RiskLevel: risk, Timestamp: now,
		}))
	}

	add("u1", "10.0.0.1", "login_success", true, CategoryAuth, RiskLow)
	add("u1", "10.0.0.1", "login_failure", false, CategoryAuth, RiskMedium)
	add("u2", "10.0.0.2", "login_failure", false, CategoryAuth, RiskMedium)
	add("u2", "10.0.0.2", "account_lockout", false, CategorySecurity, RiskCritical)
	add("u1", "10.0.0.1", "role_change", true, CategoryAdmin, RiskHigh)

	stats, err := ComputeStats(ctx, st, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 5, stats.TotalEvents)
	require.Equal(t, 2, stats.FailedLogins)
	require.Equal(t, 2, stats.HighRiskCount)
	require.Equal(t, 2, stats.UniqueUsers)
	require.Equal(t, 2, stats.UniqueIPs)
	require.Equal(t, 3, stats.ByCategory[CategoryAuth])
	require.Equal(t, ActionCount{Action: "login_failure", Count: 2}, stats.TopActions[0])
}

func TestSecurityAlerts(t *testing.T) {
	st := NewMemoryStore(0)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, risk := range []RiskLevel{RiskLow, RiskHigh, RiskCritical, RiskMedium, RiskHigh} {
		at := now.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.Append(ctx, Entry{ID: NewID(at), Action: "e", RiskLevel: risk, Timestamp: at}))
	}

	alerts, err := SecurityAlerts(ctx, st, now.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	for i := 1; i < len(alerts); i++ {
		require.False(t, alerts[i].Timestamp.After(alerts[i-1].Timestamp), "newest first")
	}
}

func TestExportCSV(t *testing.T) {
	st := NewMemoryStore(0)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.Append(ctx, Entry{
		ID: NewID(at), UserID: "u1", Action: "login_success", Resource: "auth",
		Success: true, RiskLevel: RiskLow, Category: CategoryAuth,
		IPAddress: "10.0.0.1", UserAgent: "Mozilla/5.0",
		Details: map[string]string{"device": "Chrome on Windows"}, Timestamp: at,
	}))

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, st, Filter{}, FormatCSV, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "2026-03-01T12:00:00Z", rows[1][0])
	require.Equal(t, "u1", rows[1][1])
	require.Equal(t, "true", rows[1][5])
	require.Contains(t, rows[1][9], `"device":"Chrome on Windows"`)
}

func TestExportJSON(t *testing.T) {
	st := NewMemoryStore(0)
	ctx := context.Background()
	at := time.Now().UTC()
	require.NoError(t, st.Append(ctx, Entry{ID: NewID(at), Action: "login_success", Timestamp: at}))

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, st, Filter{}, FormatJSON, &buf))
	require.True(t, strings.Contains(buf.String(), `"action": "login_success"`))
}

func TestULIDsSortByTime(t *testing.T) {
	a := NewID(time.Now())
	b := NewID(time.Now().Add(time.Second))
	require.Less(t, a, b)
}
