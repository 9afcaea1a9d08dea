package authcore

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/metrics"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/password"
	"github.com/maintainpro/authcore/rbac"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

// Builder assembles an Engine. Configure, then call Build exactly once.
type Builder struct {
	config Config
	redis  *redis.Client

	roles []rbac.RoleDefinition

	userProvider UserProvider
	auditStore   audit.Store
	mfaSender    mfa.Sender
	metrics      *metrics.Metrics
	log          zerolog.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis backs sessions and lockout counters with Redis instead of the
// in-process stores.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithRoles replaces the built-in MaintainPro role table.
func (b *Builder) WithRoles(defs []rbac.RoleDefinition) *Builder {
	b.roles = defs
	return b
}

// WithUserProvider sets the required user database integration.
func (b *Builder) WithUserProvider(p UserProvider) *Builder {
	b.userProvider = p
	return b
}

// WithAuditStore overrides the default retention-bounded memory store.
func (b *Builder) WithAuditStore(st audit.Store) *Builder {
	b.auditStore = st
	return b
}

// WithMFASender wires SMS and email challenge delivery.
func (b *Builder) WithMFASender(s mfa.Sender) *Builder {
	b.mfaSender = s
	return b
}

// WithMetrics attaches a collector set.
func (b *Builder) WithMetrics(m *metrics.Metrics) *Builder {
	b.metrics = m
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authcore: builder already used")
	}
	if b.userProvider == nil {
		return nil, errors.New("authcore: user provider is required")
	}

	cfg := b.config

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("authcore: password config: %w", err)
	}

	tokens, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("authcore: jwt config: %w", err)
	}

	sealer, err := mfa.NewSealer(cfg.MFASealKey)
	if err != nil {
		return nil, fmt.Errorf("authcore: mfa seal key: %w", err)
	}
	mfaSvc, err := mfa.NewService(cfg.MFAIssuer, sealer)
	if err != nil {
		return nil, fmt.Errorf("authcore: mfa config: %w", err)
	}

	roles := b.roles
	if roles == nil {
		roles = rbac.DefaultRoles()
	}
	registry, err := rbac.NewRegistry(roles)
	if err != nil {
		return nil, fmt.Errorf("authcore: role table: %w", err)
	}

	var sessionStore session.Store
	var lockout LockoutStore
	if b.redis != nil {
		sessionStore = session.NewRedisStore(b.redis, "authcore")
		lockout = security.NewRedisLockout(b.redis, cfg.Lockout, "authcore:lockout")
	} else {
		sessionStore = session.NewMemoryStore()
		lockout = security.NewLockoutTracker(cfg.Lockout)
	}

	sessions, err := session.NewManager(cfg.Session, sessionStore)
	if err != nil {
		return nil, fmt.Errorf("authcore: session config: %w", err)
	}

	auditStore := b.auditStore
	if auditStore == nil {
		auditStore = audit.NewMemoryStore(0)
	}

	workers := cfg.HashWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	e := &Engine{
		config:   cfg,
		registry: registry,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		mfaSvc:   mfaSvc,
		mfaChal:  mfa.NewChallengeStore(cfg.MFAChallengeTTL),
		sender:   b.mfaSender,
		lockout:  lockout,
		threat:   security.NewThreatDetector(cfg.Threat),
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		resets:   newResetStore(cfg.ResetTokenTTL),
		users:    b.userProvider,
		auditor:  audit.NewLogger(auditStore, cfg.Audit, b.log),
		metrics:  b.metrics,
		log:      b.log,
		hashGate: make(chan struct{}, workers),
	}

	b.built = true
	return e, nil
}
