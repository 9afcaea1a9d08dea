package authcore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/metrics"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/password"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

const (
	testPassword  = "Vortex!Maple9"
	testSealKey   = "0123456789abcdef0123456789abcdef"
	testAccessKey = "access-secret-access-secret-1234"
	testRefresh   = "refresh-secret-refresh-secret-12"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		Pepper:      []byte("test-pepper-0123"),
	}
	cfg.JWT = jwt.Config{
		AccessSecret:  []byte(testAccessKey),
		RefreshSecret: []byte(testRefresh),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "maintainpro-test",
	}
	cfg.MFASealKey = []byte(testSealKey)
	cfg.RateLimit = security.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *MemoryUserProvider
	store  *audit.MemoryStore
	hash   string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewHasher(cfg.Password)
	require.NoError(t, err)
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	users := NewMemoryUserProvider()
	store := audit.NewMemoryStore(0)

	engine, err := New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithAuditStore(store).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, store: store, hash: hash}
}

func (env *testEnv) seedUser(email, role, warehouse string) UserRecord {
	return env.users.Seed(UserRecord{
		Email:        email,
		PasswordHash: env.hash,
		Role:         role,
		WarehouseID:  warehouse,
		Active:       true,
	})
}

func loginReq(email, pw string) LoginRequest {
	return LoginRequest{
		Email:    email,
		Password: pw,
		Device: session.DeviceInfo{
			IPAddress: "203.0.113.10",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0",
		},
	}
}

func (env *testEnv) auditActions(t *testing.T) []string {
	t.Helper()
	env.engine.auditor.Close()
	entries, _, err := env.store.Query(context.Background(), audit.Filter{PageSize: 1000})
	require.NoError(t, err)
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")

	res, err := env.engine.Login(context.Background(), loginReq("Tech@MaintainPro.com", testPassword))
	require.NoError(t, err)
	require.Equal(t, user.ID, res.User.ID)
	require.Empty(t, res.User.PasswordHash)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.RefreshToken)
	require.True(t, res.Session.Active)
	require.False(t, res.Suspicious)

	require.Contains(t, env.auditActions(t), "login_success")
}

func TestLoginWrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")

	_, err1 := env.engine.Login(context.Background(), loginReq("tech@maintainpro.com", "wrong-password"))
	_, err2 := env.engine.Login(context.Background(), loginReq("nobody@maintainpro.com", "wrong-password"))

	require.ErrorIs(t, err1, ErrInvalidCredentials)
	require.ErrorIs(t, err2, ErrInvalidCredentials)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", "wrong-password"))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrAccountLocked)

	var failure *LoginFailure
	require.ErrorAs(t, err, &failure)
	require.Greater(t, failure.RetryAfter, time.Duration(0))

	require.Contains(t, env.auditActions(t), "account_lockout")
}

func TestLoginSuccessResetsFailureStreak(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", "wrong-password"))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	// The streak restarted, so four more failures still do not lock.
	for i := 0; i < 4; i++ {
		_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", "wrong-password"))
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	require.NoError(t, env.users.SetActive(context.Background(), user.ID, false))

	_, err := env.engine.Login(context.Background(), loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestLoginBlacklistedIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Threat.BlacklistedIPs = []string{"203.0.113.10"}
	})
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")

	_, err := env.engine.Login(context.Background(), loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrThreatBlocked)
}

func TestLoginInjectionPayloadBlocked(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")

	req := loginReq("tech@maintainpro.com", testPassword)
	req.Email = "tech' UNION SELECT email FROM users--@maintainpro.com"
	_, err := env.engine.Login(context.Background(), req)
	require.ErrorIs(t, err, ErrThreatBlocked)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit = security.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	})
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
		require.NoError(t, err)
	}
	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrRateLimited)
}

func enrollTOTP(t *testing.T, env *testEnv, userID string) *MFASetup {
	t.Helper()
	ctx := context.Background()

	setup, err := env.engine.SetupMFA(ctx, userID, mfa.TypeTOTP, "")
	require.NoError(t, err)
	require.Len(t, setup.BackupCodes, mfa.DefaultBackupCodeCount)

	code, err := mfa.CodeForSecret(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.EnableMFA(ctx, userID, code))
	return setup
}

func TestLoginMFAFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	setup := enrollTOTP(t, env, user.ID)
	ctx := context.Background()

	// Password alone is not enough once MFA is on.
	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrMFARequired)

	// Wrong code fails and counts toward lockout.
	req := loginReq("tech@maintainpro.com", testPassword)
	req.MFAToken = "000000"
	_, err = env.engine.Login(ctx, req)
	require.ErrorIs(t, err, ErrInvalidMFAToken)

	// A current TOTP code completes the login.
	code, err := mfa.CodeForSecret(setup.Secret, time.Now())
	require.NoError(t, err)
	req.MFAToken = code
	res, err := env.engine.Login(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens.AccessToken)
}

func TestLoginBackupCodeSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	setup := enrollTOTP(t, env, user.ID)
	ctx := context.Background()

	req := loginReq("tech@maintainpro.com", testPassword)
	req.MFAToken = setup.BackupCodes[0]
	_, err := env.engine.Login(ctx, req)
	require.NoError(t, err)

	// The same code is burned.
	_, err = env.engine.Login(ctx, req)
	require.ErrorIs(t, err, ErrInvalidMFAToken)

	// A different code still works.
	req.MFAToken = setup.BackupCodes[1]
	_, err = env.engine.Login(ctx, req)
	require.NoError(t, err)
}

func TestRefreshRotatesAndPicksUpRoleChange(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.users.UpdateRole(ctx, user.ID, "supervisor"))

	pair, err := env.engine.RefreshToken(ctx, res.Tokens.RefreshToken, "203.0.113.10")
	require.NoError(t, err)

	claims, err := env.engine.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "supervisor", claims.Role)
	require.Equal(t, res.Session.ID, claims.SessionID)
}

func TestRefreshFailsAfterLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.engine.Logout(ctx, res.Tokens.AccessToken, "203.0.113.10"))

	_, err = env.engine.RefreshToken(ctx, res.Tokens.RefreshToken, "203.0.113.10")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	_, err = env.engine.RefreshToken(ctx, res.Tokens.AccessToken, "203.0.113.10")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestValidateAccessRoleMatrix(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	login := func(email, role string) *LoginResult {
		env.seedUser(email, role, "wh-1")
		res, err := env.engine.Login(ctx, loginReq(email, testPassword))
		require.NoError(t, err)
		return res
	}

	tech := login("tech@maintainpro.com", "technician")
	supervisor := login("super@maintainpro.com", "supervisor")
	manager := login("mgr@maintainpro.com", "manager")
	admin := login("admin@maintainpro.com", "admin")

	cases := []struct {
		name    string
		token   string
		req     AccessRequest
		allowed bool
	}{
		{"technician reads own warehouse", tech.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "read", ResourceWarehouse: "wh-1"}, true},
		{"technician blocked cross warehouse", tech.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "read", ResourceWarehouse: "wh-2"}, false},
		{"technician updates own assignment", tech.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "update", ResourceOwnerID: tech.User.ID}, true},
		{"technician blocked on others assignment", tech.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "update", ResourceOwnerID: "someone-else"}, false},
		{"technician cannot delete", tech.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "delete"}, false},
		{"supervisor inherits technician read", supervisor.Tokens.AccessToken,
			AccessRequest{Resource: "equipment", Action: "read", ResourceWarehouse: "wh-1"}, true},
		{"supervisor creates work orders", supervisor.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "create"}, true},
		{"supervisor cannot delete", supervisor.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "delete"}, false},
		{"manager deletes work orders", manager.Tokens.AccessToken,
			AccessRequest{Resource: "work_orders", Action: "delete"}, true},
		{"admin wildcard", admin.Tokens.AccessToken,
			AccessRequest{Resource: "system_settings", Action: "update"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			req.AccessToken = tc.token
			res, err := env.engine.ValidateAccess(ctx, req)
			if tc.allowed {
				require.NoError(t, err)
				require.NotEmpty(t, res.UserID)
			} else {
				require.ErrorIs(t, err, ErrPermissionDenied)
			}
		})
	}
}

func TestValidateAccessEndedSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.engine.Sessions().End(ctx, res.Session.ID))

	_, err = env.engine.ValidateAccess(ctx, AccessRequest{
		AccessToken: res.Tokens.AccessToken,
		Resource:    "work_orders", Action: "read",
		ResourceWarehouse: "wh-1",
	})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestValidateAccessGarbageToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.engine.ValidateAccess(context.Background(), AccessRequest{
		AccessToken: "not-a-token",
		Resource:    "work_orders", Action: "read",
	})
	require.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	user, err := env.engine.Register(ctx, RegisterRequest{
		Email:       "new@maintainpro.com",
		Password:    "Quartz!Heron42",
		Role:        "technician",
		WarehouseID: "wh-2",
	})
	require.NoError(t, err)
	require.Empty(t, user.PasswordHash)

	_, err = env.engine.Login(ctx, loginReq("new@maintainpro.com", "Quartz!Heron42"))
	require.NoError(t, err)

	// Duplicate email.
	_, err = env.engine.Register(ctx, RegisterRequest{
		Email: "new@maintainpro.com", Password: "Quartz!Heron43", Role: "technician",
	})
	require.ErrorIs(t, err, ErrUserExists)

	// Weak password.
	_, err = env.engine.Register(ctx, RegisterRequest{
		Email: "weak@maintainpro.com", Password: "abc", Role: "technician",
	})
	require.ErrorIs(t, err, ErrWeakPassword)

	// Unknown role.
	_, err = env.engine.Register(ctx, RegisterRequest{
		Email: "ghost@maintainpro.com", Password: "Quartz!Heron44", Role: "wizard",
	})
	require.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)
	other, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	require.ErrorIs(t,
		env.engine.ChangePassword(ctx, user.ID, "wrong", "Quartz!Heron42", res.Session.ID),
		ErrInvalidCredentials)

	require.NoError(t,
		env.engine.ChangePassword(ctx, user.ID, testPassword, "Quartz!Heron42", res.Session.ID))

	// The kept session stays live, the other one is revoked.
	_, err = env.engine.Sessions().Validate(ctx, res.Session.ID)
	require.NoError(t, err)
	_, err = env.engine.Sessions().Validate(ctx, other.Session.ID)
	require.Error(t, err)

	// Old password no longer works, new one does.
	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", "Quartz!Heron42"))
	require.NoError(t, err)

	// Reverting to the previous password is refused.
	require.ErrorIs(t,
		env.engine.ChangePassword(ctx, user.ID, "Quartz!Heron42", testPassword, ""),
		ErrPasswordReused)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	token, err := env.engine.RequestPasswordReset(ctx, "tech@maintainpro.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Unknown address yields no signal and no token.
	ghost, err := env.engine.RequestPasswordReset(ctx, "ghost@maintainpro.com")
	require.NoError(t, err)
	require.Empty(t, ghost)

	require.ErrorIs(t,
		env.engine.ConfirmPasswordReset(ctx, "tech@maintainpro.com", "bogus", "Quartz!Heron42"),
		ErrResetTokenInvalid)

	require.NoError(t,
		env.engine.ConfirmPasswordReset(ctx, "tech@maintainpro.com", token, "Quartz!Heron42"))

	// The token is single use.
	require.ErrorIs(t,
		env.engine.ConfirmPasswordReset(ctx, "tech@maintainpro.com", token, "Quartz!Heron43"),
		ErrResetTokenInvalid)

	// Every session was revoked.
	_, err = env.engine.Sessions().Validate(ctx, res.Session.ID)
	require.Error(t, err)

	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", "Quartz!Heron42"))
	require.NoError(t, err)
}

func TestChangeUserRole(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedUser("admin@maintainpro.com", "admin", "")
	manager := env.seedUser("mgr@maintainpro.com", "manager", "wh-1")
	tech := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	// A manager may promote below their own rank.
	require.NoError(t, env.engine.ChangeUserRole(ctx, manager.ID, tech.ID, "supervisor"))

	// But not to their own rank or to admin.
	require.ErrorIs(t, env.engine.ChangeUserRole(ctx, manager.ID, tech.ID, "manager"), ErrPermissionDenied)
	require.ErrorIs(t, env.engine.ChangeUserRole(ctx, manager.ID, tech.ID, "admin"), ErrPermissionDenied)

	// Only admin grants admin.
	require.NoError(t, env.engine.ChangeUserRole(ctx, admin.ID, tech.ID, "admin"))
}

func TestDisableUserRevokesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.seedUser("admin@maintainpro.com", "admin", "")
	tech := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.engine.SetUserActive(ctx, admin.ID, tech.ID, false))

	_, err = env.engine.Sessions().Validate(ctx, res.Session.ID)
	require.Error(t, err)
	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestDisableMFA(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	enrollTOTP(t, env, user.ID)
	ctx := context.Background()

	require.ErrorIs(t, env.engine.DisableMFA(ctx, user.ID, "wrong"), ErrInvalidCredentials)
	require.NoError(t, env.engine.DisableMFA(ctx, user.ID, testPassword))

	// MFA is gone, password alone suffices again.
	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	setup := enrollTOTP(t, env, user.ID)
	ctx := context.Background()

	fresh, err := env.engine.RegenerateBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, fresh, mfa.DefaultBackupCodeCount)

	// Old codes are invalidated by regeneration.
	req := loginReq("tech@maintainpro.com", testPassword)
	req.MFAToken = setup.BackupCodes[0]
	_, err = env.engine.Login(ctx, req)
	require.ErrorIs(t, err, ErrInvalidMFAToken)

	req.MFAToken = fresh[0]
	_, err = env.engine.Login(ctx, req)
	require.NoError(t, err)
}

func TestAuditRedactsCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	_, _ = env.engine.Login(ctx, loginReq("tech@maintainpro.com", "wrong-password"))
	env.engine.auditor.Close()

	entries, _, err := env.store.Query(ctx, audit.Filter{PageSize: 100})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		for _, v := range e.Details {
			require.NotContains(t, v, "wrong-password")
			require.NotContains(t, v, testPassword)
		}
	}
}

func TestBuilderRejectsBadConfig(t *testing.T) {
	users := NewMemoryUserProvider()

	_, err := New().WithUserProvider(users).Build()
	require.Error(t, err, "missing jwt secrets must fail")

	cfg := testConfig()
	cfg.MFASealKey = []byte("short")
	_, err = New().WithConfig(cfg).WithUserProvider(users).Build()
	require.Error(t, err)

	_, err = New().WithConfig(testConfig()).Build()
	require.Error(t, err, "missing user provider must fail")
}

func TestLoginNormalizesEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("Tech@MaintainPro.com", "technician", "wh-1")

	_, err := env.engine.Login(context.Background(), loginReq("  TECH@maintainpro.COM  ", testPassword))
	require.NoError(t, err)
}

func TestLoginSanitizedAuditEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Login(context.Background(), loginReq("nobody@maintainpro.com", "x"))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	actions := env.auditActions(t)
	require.True(t, contains(actions, "login_failure") || contains(actions, "account_lockout"))
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, want) {
			return true
		}
	}
	return false
}

type captureSender struct {
	phone string
	code  string
}

func (c *captureSender) SendSMS(_ context.Context, phoneNumber, code string) error {
	c.phone, c.code = phoneNumber, code
	return nil
}

func (c *captureSender) SendEmail(context.Context, string, string) error { return nil }

func TestSMSEnrollmentAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	sender := &captureSender{}
	env.engine.sender = sender

	_, err := env.engine.SetupMFA(ctx, user.ID, mfa.TypeSMS, "")
	require.ErrorIs(t, err, ErrInvalidRequest)

	setup, err := env.engine.SetupMFA(ctx, user.ID, mfa.TypeSMS, "+15550100123")
	require.NoError(t, err)
	require.Empty(t, setup.Secret)
	require.Len(t, setup.BackupCodes, mfa.DefaultBackupCodeCount)
	require.Equal(t, "+15550100123", sender.phone)
	require.NotEmpty(t, sender.code)

	require.NoError(t, env.engine.EnableMFA(ctx, user.ID, sender.code))

	// A password-only login delivers a fresh challenge and stops short.
	_, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.ErrorIs(t, err, ErrMFARequired)

	req := loginReq("tech@maintainpro.com", testPassword)
	req.MFAToken = sender.code
	res, err := env.engine.Login(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens.AccessToken)
}

func TestRequirePasswordChangeFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	admin := env.seedUser("admin@maintainpro.com", "admin", "")
	ctx := context.Background()

	require.NoError(t, env.engine.RequirePasswordChange(ctx, admin.ID, user.ID))

	res, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)
	require.True(t, res.MustChangePassword)

	require.NoError(t, env.engine.ChangePassword(ctx, user.ID, testPassword, "Quartz!Heron42", res.Session.ID))

	res, err = env.engine.Login(ctx, loginReq("tech@maintainpro.com", "Quartz!Heron42"))
	require.NoError(t, err)
	require.False(t, res.MustChangePassword)
}

func TestHashDurationObserved(t *testing.T) {
	cfg := testConfig()
	hasher, err := password.NewHasher(cfg.Password)
	require.NoError(t, err)
	hash, err := hasher.Hash(testPassword)
	require.NoError(t, err)

	users := NewMemoryUserProvider()
	m := metrics.New()
	engine, err := New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithMetrics(m).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	users.Seed(UserRecord{
		Email:        "tech@maintainpro.com",
		PasswordHash: hash,
		Role:         "technician",
		Active:       true,
	})
	_, err = engine.Login(context.Background(), loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), "authcore_password_hash_duration_seconds_count 1")
}

func TestPasswordReuseCheckHoldsKDFSlot(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.HashWorkers = 1 })
	user := env.seedUser("tech@maintainpro.com", "technician", "wh-1")

	// Occupy the only KDF slot; the reuse check must queue behind it
	// rather than running argon2 ungated.
	require.NoError(t, env.engine.acquireHash(context.Background()))
	defer env.engine.releaseHash()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	rec, err := env.users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	err = env.engine.applyNewPassword(ctx, rec, "Quartz!Heron42")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoginAuditDeviceSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser("tech@maintainpro.com", "technician", "wh-1")
	ctx := context.Background()

	_, err := env.engine.Login(ctx, loginReq("tech@maintainpro.com", testPassword))
	require.NoError(t, err)

	env.engine.auditor.Close()
	entries, _, err := env.store.Query(ctx, audit.Filter{Action: "login_success", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Chrome/Windows", entries[0].Details["device"])
}
