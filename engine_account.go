package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/password"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

// Register provisions a new account after validating the password against
// policy. The role must exist in the role table.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*UserRecord, error) {
	email := security.NormalizeIdentifier(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidRequest)
	}
	if _, ok := e.registry.Role(req.Role); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, req.Role)
	}

	result := password.Validate(req.Password, password.UserInfo{
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, nil, e.hasher, e.config.PasswordPolicy)
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Errors, "; "))
	}

	hash, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		Role:         req.Role,
		WarehouseID:  req.WarehouseID,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	e.auditor.Log(ctx, audit.Record{
		UserID:   user.ID,
		Action:   "account_created",
		Resource: "user", ResourceID: user.ID,
		Details:  map[string]string{"role": user.Role},
		Success:  true,
		Category: audit.CategoryAdmin,
	})

	user.PasswordHash = ""
	return &user, nil
}

// ChangePassword verifies the current password, validates the new one, and
// rejects reuse of recent hashes. Other sessions are revoked so a stolen
// session cannot outlive the credential it was minted under.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, keepSessionID string) error {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}

	ok, err := e.verifyPassword(ctx, currentPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.auditor.LogLogin(ctx, userID, "password_change_failed", "", "", false, nil)
		return ErrInvalidCredentials
	}

	if err := e.applyNewPassword(ctx, user, newPassword); err != nil {
		return err
	}
	e.revokeOtherSessions(ctx, userID, keepSessionID)
	e.countReset("changed")

	e.auditor.LogLogin(ctx, userID, "password_changed", "", "", true, nil)
	return nil
}

// RequestPasswordReset issues a reset token. The return value is identical
// whether or not the account exists; the token reaches the real owner out
// of band through the returned send callback path.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	identifier := security.NormalizeIdentifier(email)

	if !e.limiter.Allow("reset:" + identifier) {
		return "", ErrRateLimited
	}

	user, err := e.users.GetUserByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown accounts get no signal.
			return "", nil
		}
		return "", fmt.Errorf("user lookup: %w", err)
	}

	token, err := password.GenerateResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	e.resets.issue(user.ID, token, time.Now())
	e.countReset("requested")

	e.auditor.Log(ctx, audit.Record{
		UserID:   user.ID,
		Action:   "password_reset_requested",
		Resource: "user", ResourceID: user.ID,
		Success:  true,
		Category: audit.CategoryAuth,
	})
	return token, nil
}

// ConfirmPasswordReset burns the token, applies the new password, and
// revokes every session the account holds.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	identifier := security.NormalizeIdentifier(email)

	user, err := e.users.GetUserByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("user lookup: %w", err)
	}

	if !e.resets.consume(user.ID, token, time.Now()) {
		e.auditor.Log(ctx, audit.Record{
			UserID:   user.ID,
			Action:   "password_reset_failed",
			Resource: "user", ResourceID: user.ID,
			Success:  false,
			Category: audit.CategoryAuth,
		})
		return ErrResetTokenInvalid
	}

	if err := e.applyNewPassword(ctx, user, newPassword); err != nil {
		return err
	}
	e.revokeOtherSessions(ctx, user.ID, "")
	e.countReset("confirmed")

	e.auditor.Log(ctx, audit.Record{
		UserID:   user.ID,
		Action:   "password_reset_confirmed",
		Resource: "user", ResourceID: user.ID,
		Success:  true,
		Category: audit.CategoryAuth,
	})
	return nil
}

// applyNewPassword runs policy and reuse checks, hashes, and persists the
// rotated hash ring.
func (e *Engine) applyNewPassword(ctx context.Context, user UserRecord, newPassword string) error {
	history := user.PreviousHashes
	if user.PasswordHash != "" {
		history = append([]string{user.PasswordHash}, history...)
	}

	// The reuse check verifies the candidate against every hash in the
	// ring, so it holds a KDF slot like any other argon2 work.
	if err := e.acquireHash(ctx); err != nil {
		return err
	}
	result := password.Validate(newPassword, password.UserInfo{Email: user.Email}, history, e.hasher, e.config.PasswordPolicy)
	e.releaseHash()
	if !result.Valid {
		for _, msg := range result.Errors {
			if strings.Contains(msg, "last") && strings.Contains(msg, "passwords") {
				return ErrPasswordReused
			}
		}
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Errors, "; "))
	}

	newHash, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	keep := e.config.PasswordPolicy.PreviousHashCount
	if keep > 0 && len(history) > keep {
		history = history[:keep]
	}
	if err := e.users.UpdatePassword(ctx, user.ID, newHash, history); err != nil {
		return fmt.Errorf("persist password: %w", err)
	}
	if user.MustChange {
		if err := e.users.SetMustChangePassword(ctx, user.ID, false); err != nil {
			return fmt.Errorf("clear password change flag: %w", err)
		}
	}
	return nil
}

// revokeOtherSessions ends the user's sessions except keepSessionID.
func (e *Engine) revokeOtherSessions(ctx context.Context, userID, keepSessionID string) {
	sessions, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("session list failed during revocation")
		return
	}
	for _, s := range sessions {
		if s.ID == keepSessionID {
			continue
		}
		if err := e.sessions.End(ctx, s.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
			e.log.Warn().Err(err).Str("session_id", s.ID).Msg("session end failed during revocation")
		}
		e.countSessionEnd("credential_rotation")
	}
}

func (e *Engine) countReset(stage string) {
	if e.metrics != nil {
		e.metrics.PasswordResets.WithLabelValues(stage).Inc()
	}
}
