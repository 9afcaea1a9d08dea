package authcore

import (
	"context"
	"time"

	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/session"
)

// UserRecord is the account snapshot the engine works with. Providers own
// persistence; the engine never writes fields directly.
type UserRecord struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	PasswordHash   string
	Role           string
	WarehouseID    string
	Active         bool
	MustChange     bool
	MFA            *mfa.Config
	PreviousHashes []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateUserInput carries the fields needed to provision an account.
type CreateUserInput struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         string
	WarehouseID  string
}

// UserProvider is the integration seam to the caller's user database.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePassword(ctx context.Context, userID, newHash string, previousHashes []string) error
	UpdateMFA(ctx context.Context, userID string, cfg *mfa.Config) error
	SetActive(ctx context.Context, userID string, active bool) error
	SetMustChangePassword(ctx context.Context, userID string, required bool) error
	UpdateRole(ctx context.Context, userID, role string) error
}

// LoginRequest carries one authentication attempt.
type LoginRequest struct {
	Email      string
	Password   string
	MFAToken   string
	RememberMe bool
	Device     session.DeviceInfo
}

// LoginResult is returned on a fully authenticated login.
type LoginResult struct {
	User       UserRecord
	Session    *session.Session
	Tokens     jwt.TokenPair
	Suspicious bool

	// MustChangePassword tells the caller to force a password rotation
	// before letting the user at anything else.
	MustChangePassword bool
}

// LoginFailure annotates a login error with retry information. Lockout
// errors wrap it so callers can surface the remaining wait.
type LoginFailure struct {
	Err        error
	RetryAfter time.Duration
}

func (f *LoginFailure) Error() string { return f.Err.Error() }

func (f *LoginFailure) Unwrap() error { return f.Err }

// AccessRequest asks whether a bearer token may perform an action.
type AccessRequest struct {
	AccessToken       string
	Resource          string
	Action            string
	ResourceOwnerID   string
	ResourceWarehouse string
	ResourceID        string
}

// AccessResult reports an allowed access with the caller's identity resolved.
type AccessResult struct {
	UserID      string
	Role        string
	WarehouseID string
	SessionID   string
}

// RegisterRequest provisions a new account.
type RegisterRequest struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        string
	WarehouseID string
}

// MFASetup is returned by SetupMFA; the shared secret and backup codes are
// shown to the user exactly once.
type MFASetup struct {
	Secret      string
	OTPAuthURI  string
	QRCodeURL   string
	BackupCodes []string
}
