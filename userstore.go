package authcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/security"
)

// MemoryUserProvider is a UserProvider backed by process memory. It serves
// tests, examples, and single-node deployments; production integrations
// implement UserProvider against their own database.
type MemoryUserProvider struct {
	mu      sync.RWMutex
	byID    map[string]UserRecord
	byEmail map[string]string
}

func NewMemoryUserProvider() *MemoryUserProvider {
	return &MemoryUserProvider{
		byID:    make(map[string]UserRecord),
		byEmail: make(map[string]string),
	}
}

// Seed inserts a fully formed record, generating an ID when absent.
func (p *MemoryUserProvider) Seed(user UserRecord) UserRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = security.NormalizeIdentifier(user.Email)
	p.byID[user.ID] = user
	p.byEmail[user.Email] = user.ID
	return user
}

func (p *MemoryUserProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.byEmail[security.NormalizeIdentifier(email)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return cloneUser(p.byID[id]), nil
}

func (p *MemoryUserProvider) GetUserByID(_ context.Context, id string) (UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.byID[id]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (p *MemoryUserProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email := security.NormalizeIdentifier(input.Email)
	if _, exists := p.byEmail[email]; exists {
		return UserRecord{}, ErrUserExists
	}
	now := time.Now().UTC()
	user := UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		WarehouseID:  input.WarehouseID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.byID[user.ID] = user
	p.byEmail[email] = user.ID
	return cloneUser(user), nil
}

func (p *MemoryUserProvider) UpdatePassword(_ context.Context, userID, newHash string, previousHashes []string) error {
	return p.update(userID, func(u *UserRecord) {
		u.PasswordHash = newHash
		u.PreviousHashes = append([]string(nil), previousHashes...)
	})
}

func (p *MemoryUserProvider) UpdateMFA(_ context.Context, userID string, cfg *mfa.Config) error {
	return p.update(userID, func(u *UserRecord) {
		if cfg == nil {
			u.MFA = nil
			return
		}
		c := *cfg
		c.BackupCodes = append([]mfa.BackupCode(nil), cfg.BackupCodes...)
		u.MFA = &c
	})
}

func (p *MemoryUserProvider) SetActive(_ context.Context, userID string, active bool) error {
	return p.update(userID, func(u *UserRecord) { u.Active = active })
}

func (p *MemoryUserProvider) SetMustChangePassword(_ context.Context, userID string, required bool) error {
	return p.update(userID, func(u *UserRecord) { u.MustChange = required })
}

func (p *MemoryUserProvider) UpdateRole(_ context.Context, userID, role string) error {
	return p.update(userID, func(u *UserRecord) { u.Role = role })
}

func (p *MemoryUserProvider) update(userID string, fn func(*UserRecord)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now().UTC()
	p.byID[userID] = user
	return nil
}

func cloneUser(u UserRecord) UserRecord {
	u.PreviousHashes = append([]string(nil), u.PreviousHashes...)
	if u.MFA != nil {
		cfg := *u.MFA
		cfg.BackupCodes = append([]mfa.BackupCode(nil), u.MFA.BackupCodes...)
		u.MFA = &cfg
	}
	return u
}
