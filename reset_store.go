package authcore

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// resetStore holds outstanding password reset tokens. Tokens are stored as
// SHA-256 digests and consumed on first successful use.
type resetStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	byUser map[string]resetEntry
}

type resetEntry struct {
	tokenHash string
	expiresAt time.Time
}

func newResetStore(ttl time.Duration) *resetStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &resetStore{ttl: ttl, byUser: make(map[string]resetEntry)}
}

// issue registers a token for the user, replacing any outstanding one.
func (s *resetStore) issue(userID, token string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = resetEntry{
		tokenHash: hashResetToken(token),
		expiresAt: now.Add(s.ttl),
	}
}

// consume validates and burns the user's token. A mismatch leaves the token
// in place; expiry removes it.
func (s *resetStore) consume(userID, token string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byUser[userID]
	if !ok {
		return false
	}
	if now.After(entry.expiresAt) {
		delete(s.byUser, userID)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(entry.tokenHash), []byte(hashResetToken(token))) != 1 {
		return false
	}
	delete(s.byUser, userID)
	return true
}

// sweep drops expired tokens.
func (s *resetStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, entry := range s.byUser {
		if now.After(entry.expiresAt) {
			delete(s.byUser, userID)
			removed++
		}
	}
	return removed
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
