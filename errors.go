package authcore

import (
	"errors"

	"github.com/maintainpro/authcore/jwt"
)

var (
	// ErrInvalidCredentials covers both unknown users and wrong passwords so
	// a caller cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrMFARequired signals that the credential check passed and a second
	// factor must be presented.
	ErrMFARequired = errors.New("mfa required")
	// ErrInvalidMFAToken is returned for failed TOTP, backup code, or
	// challenge verification.
	ErrInvalidMFAToken = errors.New("invalid mfa token")
	// ErrMFANotEnabled is returned when an MFA operation targets an account
	// without MFA configured.
	ErrMFANotEnabled = errors.New("mfa not enabled")

	// ErrRateLimited is returned when a caller exceeds the per-key request rate.
	ErrRateLimited = errors.New("rate limited")
	// ErrThreatBlocked is returned when the threat detector rejects the
	// request before credentials are examined.
	ErrThreatBlocked = errors.New("request blocked")

	// ErrSessionNotFound is returned for unknown or already removed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned once a session's deadline has passed.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInactive is returned for sessions ended by logout or
	// administrative revocation.
	ErrSessionInactive = errors.New("session inactive")

	// ErrPermissionDenied is the single authorization failure surface.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrWeakPassword is returned when a candidate password fails policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrPasswordReused is returned when a new password matches a recent one.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrUserExists is returned by registration for a taken identifier.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by lookups outside the login path. Login
	// itself folds it into ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrResetTokenInvalid covers unknown, expired, and already used reset
	// tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrInvalidRequest marks malformed input caught before any credential
	// work, such as a bad email or an unknown role or MFA type.
	ErrInvalidRequest = errors.New("invalid request")
)

// Token errors are re-exported so callers of the root package can match them
// without importing jwt directly.
var (
	ErrInvalidAccessToken  = jwt.ErrInvalidAccessToken
	ErrAccessTokenExpired  = jwt.ErrAccessTokenExpired
	ErrInvalidRefreshToken = jwt.ErrInvalidRefreshToken
	ErrRefreshTokenExpired = jwt.ErrRefreshTokenExpired
)
