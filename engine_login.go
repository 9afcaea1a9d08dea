package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

// Login runs the full authentication pipeline. Checks short-circuit in
// order: IP blacklist, threat assessment, rate limit, lockout, user lookup,
// account status, password, MFA. Exactly one audit entry records the
// outcome, whichever stage decides it.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ip := req.Device.IPAddress
	identifier := security.NormalizeIdentifier(req.Email)

	if e.threat.IsBlacklisted(ip) {
		e.countLogin("blocked")
		e.auditor.LogSecurityEvent(ctx, "login_blocked_blacklist", ip, audit.RiskCritical, nil)
		return nil, ErrThreatBlocked
	}

	assessment := e.threat.Detect(ip, req.Device.UserAgent, req.Email)
	if assessment.ShouldBlock {
		e.countLogin("blocked")
		e.countThreat(assessment.Reasons)
		e.auditor.LogSecurityEvent(ctx, "login_blocked_threat", ip, audit.RiskCritical, map[string]string{
			"reasons": fmt.Sprint(assessment.Reasons),
		})
		return nil, ErrThreatBlocked
	}

	if !e.limiter.Allow("login:" + ip) {
		e.countLogin("rate_limited")
		e.auditor.LogSecurityEvent(ctx, "login_rate_limited", ip, audit.RiskMedium, nil)
		return nil, ErrRateLimited
	}

	if locked, err := e.lockout.IsLocked(ctx, identifier); err != nil {
		return nil, fmt.Errorf("lockout check: %w", err)
	} else if locked {
		remaining, _ := e.lockout.TimeRemaining(ctx, identifier)
		e.countLogin("locked")
		e.auditor.LogLogin(ctx, "", "login_locked_out", ip, req.Device.UserAgent, false, map[string]string{
			"email": identifier,
		})
		return nil, &LoginFailure{Err: ErrAccountLocked, RetryAfter: remaining}
	}

	user, err := e.users.GetUserByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash anyway so response timing does not reveal
			// whether the account exists.
			e.verifyPassword(ctx, req.Password, dummyHash)
			e.recordFailure(ctx, identifier, ip, req.Device.UserAgent, "")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if !user.Active {
		e.countLogin("inactive")
		e.auditor.LogLogin(ctx, user.ID, "login_inactive_account", ip, req.Device.UserAgent, false, nil)
		return nil, ErrAccountInactive
	}

	ok, err := e.verifyPassword(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.recordFailure(ctx, identifier, ip, req.Device.UserAgent, user.ID)
		return nil, ErrInvalidCredentials
	}

	if user.MFA != nil && user.MFA.Enabled {
		if req.MFAToken == "" {
			e.countLogin("mfa_required")
			e.auditor.LogMFAEvent(ctx, user.ID, "mfa_challenge_issued", ip, true, nil)
			if err := e.issueChallenge(ctx, user); err != nil {
				return nil, err
			}
			return nil, ErrMFARequired
		}
		if err := e.verifyMFAToken(ctx, &user, req.MFAToken, ip); err != nil {
			e.recordFailure(ctx, identifier, ip, req.Device.UserAgent, user.ID)
			return nil, err
		}
	}

	if err := e.lockout.Reset(ctx, identifier); err != nil {
		e.log.Warn().Err(err).Msg("lockout reset failed")
	}

	created, err := e.sessions.Create(ctx, session.CreateParams{
		UserID:     user.ID,
		IPAddress:  ip,
		UserAgent:  req.Device.UserAgent,
		Location:   req.Device.Location,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	pair, err := e.tokens.GeneratePair(jwt.Payload{
		UserID:      user.ID,
		Role:        user.Role,
		WarehouseID: user.WarehouseID,
		SessionID:   created.Session.ID,
	})
	if err != nil {
		_ = e.sessions.End(ctx, created.Session.ID)
		return nil, fmt.Errorf("mint tokens: %w", err)
	}

	e.countLogin("success")
	if e.metrics != nil {
		e.metrics.SessionsCreated.Inc()
	}

	details := map[string]string{
		"device": created.Session.Device.Browser + "/" + created.Session.Device.OS,
	}
	if created.Suspicious {
		details["suspicious"] = "true"
		details["recentIps"] = strconv.Itoa(len(created.RecentIPs))
	}
	e.auditor.LogLogin(ctx, user.ID, "login_success", ip, req.Device.UserAgent, true, details)

	user.PasswordHash = ""
	user.PreviousHashes = nil
	sess := created.Session
	return &LoginResult{
		User:               user,
		Session:            &sess,
		Tokens:             pair,
		Suspicious:         created.Suspicious,
		MustChangePassword: user.MustChange,
	}, nil
}

// dummyHash keeps the failure path's cost close to a real verification.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA==$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func (e *Engine) verifyPassword(ctx context.Context, candidate, hash string) (bool, error) {
	if err := e.acquireHash(ctx); err != nil {
		return false, err
	}
	defer e.releaseHash()
	start := time.Now()
	ok := e.hasher.Verify(candidate, hash)
	e.observeHash(start)
	return ok, nil
}

// recordFailure bumps the lockout counter and writes the audit entry for a
// failed credential or MFA check.
func (e *Engine) recordFailure(ctx context.Context, identifier, ip, userAgent, userID string) {
	locked, err := e.lockout.RecordFailure(ctx, identifier)
	if err != nil {
		e.log.Warn().Err(err).Msg("lockout record failed")
	}
	e.countLogin("invalid_credentials")
	if locked {
		if e.metrics != nil {
			e.metrics.Lockouts.Inc()
		}
		e.auditor.LogSecurityEvent(ctx, "account_lockout", ip, audit.RiskCritical, map[string]string{
			"email": identifier,
		})
		return
	}
	e.auditor.LogLogin(ctx, userID, "login_failure", ip, userAgent, false, map[string]string{
		"email": identifier,
	})
}

// issueChallenge delivers an out-of-band code for sms and email factors.
// TOTP needs no delivery.
func (e *Engine) issueChallenge(ctx context.Context, user UserRecord) error {
	switch user.MFA.Type {
	case mfa.TypeTOTP:
		return nil
	case mfa.TypeSMS, mfa.TypeEmail:
		if e.sender == nil {
			return fmt.Errorf("mfa type %s configured without a sender", user.MFA.Type)
		}
		code, err := e.mfaChal.Issue(user.ID, user.MFA.Type)
		if err != nil {
			return fmt.Errorf("issue mfa challenge: %w", err)
		}
		if user.MFA.Type == mfa.TypeSMS {
			return e.sender.SendSMS(ctx, user.MFA.PhoneNumber, code)
		}
		return e.sender.SendEmail(ctx, user.Email, code)
	default:
		return fmt.Errorf("unknown mfa type %q", user.MFA.Type)
	}
}

// verifyMFAToken accepts a TOTP code, a delivered challenge code, or a
// backup code, in that order. Consumed backup codes are persisted before
// the login proceeds.
func (e *Engine) verifyMFAToken(ctx context.Context, user *UserRecord, token, ip string) error {
	method := string(user.MFA.Type)

	switch user.MFA.Type {
	case mfa.TypeTOTP:
		ok, err := e.mfaSvc.VerifyTOTP(token, user.MFA.SealedSecret)
		if err != nil {
			return fmt.Errorf("verify totp: %w", err)
		}
		if ok {
			e.countMFA(method, "success")
			e.auditor.LogMFAEvent(ctx, user.ID, "mfa_verified", ip, true, map[string]string{"method": method})
			return nil
		}
	case mfa.TypeSMS, mfa.TypeEmail:
		ok, err := e.mfaChal.Verify(user.ID, user.MFA.Type, token)
		if err != nil && !errors.Is(err, mfa.ErrChallengeNotFound) {
			return fmt.Errorf("verify challenge: %w", err)
		}
		if ok {
			e.countMFA(method, "success")
			e.auditor.LogMFAEvent(ctx, user.ID, "mfa_verified", ip, true, map[string]string{"method": method})
			return nil
		}
	}

	if used, updated := mfa.VerifyBackupCode(token, user.MFA.BackupCodes); used {
		cfg := *user.MFA
		cfg.BackupCodes = updated
		if err := e.users.UpdateMFA(ctx, user.ID, &cfg); err != nil {
			return fmt.Errorf("consume backup code: %w", err)
		}
		user.MFA = &cfg
		e.countMFA("backup_code", "success")
		details := map[string]string{"method": "backup_code"}
		if mfa.ShouldRegenerate(updated) {
			details["regenerateAdvised"] = "true"
		}
		e.auditor.LogMFAEvent(ctx, user.ID, "mfa_backup_code_used", ip, true, details)
		return nil
	}

	e.countMFA(method, "failure")
	e.auditor.LogMFAEvent(ctx, user.ID, "mfa_failed", ip, false, map[string]string{"method": method})
	return ErrInvalidMFAToken
}

func (e *Engine) countLogin(result string) {
	if e.metrics != nil {
		e.metrics.LoginAttempts.WithLabelValues(result).Inc()
	}
}

func (e *Engine) countMFA(method, result string) {
	if e.metrics != nil {
		e.metrics.MFAVerified.WithLabelValues(method, result).Inc()
	}
}

func (e *Engine) countThreat(reasons []string) {
	if e.metrics == nil {
		return
	}
	for _, r := range reasons {
		e.metrics.ThreatBlocks.WithLabelValues(r).Inc()
	}
}
