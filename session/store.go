package session

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence seam for session rows. Implementations must
// serialize concurrent operations on the same session id and let operations
// on different ids proceed independently.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, s Session) error
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

const memoryShards = 32

type memoryShard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// MemoryStore is a sharded in-process Store. Shard selection by session id
// keeps unrelated sessions off each other's locks.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
	// byUser maps userID -> session ids; guarded by its own lock because
	// user-scoped operations cross shards.
	userMu sync.RWMutex
	byUser map[string]map[string]struct{}
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	st := &MemoryStore{byUser: make(map[string]map[string]struct{})}
	for i := range st.shards {
		st.shards[i] = &memoryShard{sessions: make(map[string]Session)}
	}
	return st
}

func (st *MemoryStore) shard(id string) *memoryShard {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return st.shards[h%memoryShards]
}

func (st *MemoryStore) Create(_ context.Context, s Session) error {
	sh := st.shard(s.ID)
	sh.mu.Lock()
	sh.sessions[s.ID] = s
	sh.mu.Unlock()

	st.userMu.Lock()
	ids, ok := st.byUser[s.UserID]
	if !ok {
		ids = make(map[string]struct{})
		st.byUser[s.UserID] = ids
	}
	ids[s.ID] = struct{}{}
	st.userMu.Unlock()
	return nil
}

func (st *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	sh := st.shard(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (st *MemoryStore) Update(_ context.Context, s Session) error {
	sh := st.shard(s.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	sh.sessions[s.ID] = s
	return nil
}

func (st *MemoryStore) ListByUser(_ context.Context, userID string) ([]Session, error) {
	st.userMu.RLock()
	ids := make([]string, 0, len(st.byUser[userID]))
	for id := range st.byUser[userID] {
		ids = append(ids, id)
	}
	st.userMu.RUnlock()

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sh := st.shard(id)
		sh.mu.RLock()
		if s, ok := sh.sessions[id]; ok {
			sessions = append(sessions, s)
		}
		sh.mu.RUnlock()
	}
	return sessions, nil
}

func (st *MemoryStore) Delete(_ context.Context, id string) error {
	sh := st.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	st.userMu.Lock()
	if ids, found := st.byUser[s.UserID]; found {
		delete(ids, id)
		if len(ids) == 0 {
			delete(st.byUser, s.UserID)
		}
	}
	st.userMu.Unlock()
	return nil
}

func (st *MemoryStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	st.userMu.RLock()
	ids := make([]string, 0, len(st.byUser[userID]))
	for id := range st.byUser[userID] {
		ids = append(ids, id)
	}
	st.userMu.RUnlock()

	removed := 0
	for _, id := range ids {
		if err := st.Delete(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (st *MemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []string
	for _, sh := range st.shards {
		sh.mu.RLock()
		for id, s := range sh.sessions {
			if s.Expired(now) {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()
	}

	removed := 0
	for _, id := range expired {
		if err := st.Delete(ctx, id); err == nil {
			removed++
		}
	}
	return removed, nil
}
