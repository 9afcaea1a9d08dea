package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is the persistence seam for the append-only log.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, int, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// Filter narrows a log read. Zero values mean "any". Page numbering is
// 1-based; PageSize 0 applies the default.
type Filter struct {
	UserID    string
	Action    string
	Resource  string
	Category  Category
	RiskLevel RiskLevel
	Success   *bool
	Since     time.Time
	Until     time.Time
	Page      int
	PageSize  int
}

const defaultPageSize = 50

// MemoryStore is a bounded in-process Store. When the entry cap is reached
// the oldest entries fall off; time-based pruning runs via Prune.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
}

// NewMemoryStore builds a store bounded at maxSize entries (0 applies 10000).
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryStore{maxSize: maxSize}
}

func (st *MemoryStore) Append(_ context.Context, e Entry) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = append(st.entries, e)
	if len(st.entries) > st.maxSize {
		overflow := len(st.entries) - st.maxSize
		st.entries = append([]Entry(nil), st.entries[overflow:]...)
	}
	return nil
}

// Query returns the matching page, newest first, plus the total match count.
func (st *MemoryStore) Query(_ context.Context, f Filter) ([]Entry, int, error) {
	st.mu.RLock()
	var matched []Entry
	for _, e := range st.entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	st.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	size := f.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (st *MemoryStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	kept := st.entries[:0]
	removed := 0
	for _, e := range st.entries {
		if e.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	st.entries = kept
	return removed, nil
}

func (f Filter) matches(e Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && !strings.EqualFold(e.Action, f.Action) {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.RiskLevel != "" && e.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}
