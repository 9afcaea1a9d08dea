package authcore

import (
	"time"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/password"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

// Config aggregates the per-layer settings. Zero-value fields are filled
// with production defaults by the Builder.
type Config struct {
	Password       password.Config
	PasswordPolicy password.Policy
	JWT            jwt.Config
	Session        session.Config
	Lockout        security.LockoutConfig
	Threat         security.ThreatConfig
	RateLimit      security.RateLimitConfig
	Audit          audit.DispatcherConfig

	// MFAIssuer labels otpauth provisioning URIs.
	MFAIssuer string
	// MFASealKey encrypts TOTP secrets at rest. Must be 32 bytes.
	MFASealKey []byte
	// MFAChallengeTTL bounds SMS and email challenge validity.
	MFAChallengeTTL time.Duration

	// ResetTokenTTL bounds password reset token validity.
	ResetTokenTTL time.Duration

	// HashWorkers caps concurrent argon2 computations so a login burst
	// cannot exhaust memory. Zero means GOMAXPROCS.
	HashWorkers int
}

// DefaultConfig returns the production defaults. Secrets (JWT keys, the MFA
// seal key, the password pepper) must still be supplied by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password:        password.DefaultConfig(),
		PasswordPolicy:  password.DefaultPolicy(),
		Session:         session.DefaultConfig(),
		Lockout:         security.DefaultLockoutConfig(),
		Threat:          security.DefaultThreatConfig(),
		RateLimit:       security.DefaultRateLimitConfig(),
		Audit:           audit.DispatcherConfig{Enabled: true, BufferSize: 1024, DropIfFull: true},
		MFAIssuer:       "MaintainPro",
		MFAChallengeTTL: 5 * time.Minute,
		ResetTokenTTL:   time.Hour,
	}
}
