package mfa

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	challengeDigits = 6
	// DefaultChallengeTTL bounds how long an SMS/email code stays valid.
	DefaultChallengeTTL = 5 * time.Minute
	maxChallengeTries   = 5
)

// ErrChallengeNotFound reports that no live code exists for the user/channel.
var ErrChallengeNotFound = errors.New("mfa challenge not found")

// Sender delivers one-time codes over external channels. Delivery is
// fire-and-forget from the auth core's point of view: a slow carrier must not
// block login, so implementations are invoked on their own goroutine.
type Sender interface {
	SendSMS(ctx context.Context, phoneNumber, code string) error
	SendEmail(ctx context.Context, email, code string) error
}

type challenge struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// ChallengeStore issues and verifies SMS/email one-time codes. Safe for
// concurrent use; entries expire lazily on verification and via Sweep.
type ChallengeStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]*challenge // keyed by userID + ":" + channel
}

// NewChallengeStore builds a store with the given code TTL.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeStore{
		ttl:     ttl,
		pending: make(map[string]*challenge),
	}
}

// Issue creates a numeric one-time code for the user on the given channel,
// replacing any previous code for the same pair.
func (s *ChallengeStore) Issue(userID string, channel Type) (string, error) {
	code, err := numericCode(challengeDigits)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[challengeKey(userID, channel)] = &challenge{
		code:      code,
		expiresAt: time.Now().Add(s.ttl),
	}
	return code, nil
}

// Verify checks candidate against the issued code. The code is consumed on
// success and after too many failed tries; an expired code never verifies.
func (s *ChallengeStore) Verify(userID string, channel Type, candidate string) (bool, error) {
	key := challengeKey(userID, channel)

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.pending[key]
	if !ok {
		return false, ErrChallengeNotFound
	}
	if time.Now().After(ch.expiresAt) {
		delete(s.pending, key)
		return false, ErrChallengeNotFound
	}

	if subtle.ConstantTimeCompare([]byte(ch.code), []byte(candidate)) == 1 {
		delete(s.pending, key)
		return true, nil
	}

	ch.attempts++
	if ch.attempts >= maxChallengeTries {
		delete(s.pending, key)
	}
	return false, nil
}

// Sweep drops expired challenges. Run from the periodic cleanup job.
func (s *ChallengeStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, ch := range s.pending {
		if now.After(ch.expiresAt) {
			delete(s.pending, key)
			removed++
		}
	}
	return removed
}

func challengeKey(userID string, channel Type) string {
	return userID + ":" + string(channel)
}

func numericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
