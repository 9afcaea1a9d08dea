package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/maintainpro/authcore/rbac"
	"github.com/maintainpro/authcore/session"
)

// ValidateAccess answers whether the bearer of an access token may perform
// an action. The token must verify, its session must still be live, and the
// role must grant the permission under the request's conditions. Allowed
// data accesses are audited; denials surface only as errors.
func (e *Engine) ValidateAccess(ctx context.Context, req AccessRequest) (*AccessResult, error) {
	claims, err := e.tokens.VerifyAccess(req.AccessToken)
	if err != nil {
		e.countAccess("invalid_token")
		return nil, err
	}

	sess, err := e.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		e.countAccess("session_gone")
		return nil, sessionError(err)
	}

	allowed := e.registry.HasPermission(rbac.Context{
		UserID:            claims.UserID,
		Role:              claims.Role,
		WarehouseID:       claims.WarehouseID,
		ResourceOwnerID:   req.ResourceOwnerID,
		ResourceWarehouse: req.ResourceWarehouse,
	}, req.Resource, req.Action)
	if !allowed {
		e.countAccess("deny")
		return nil, ErrPermissionDenied
	}

	e.countAccess("allow")
	e.auditor.LogDataAccess(ctx, claims.UserID, req.Action, req.Resource, req.ResourceID, true)

	return &AccessResult{
		UserID:      claims.UserID,
		Role:        claims.Role,
		WarehouseID: claims.WarehouseID,
		SessionID:   sess.ID,
	}, nil
}

// ValidateSession resolves a bearer token to its caller without running a
// permission check. Transport middleware uses it to populate request context;
// authorization still goes through ValidateAccess per operation.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*AccessResult, error) {
	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}
	sess, err := e.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, sessionError(err)
	}
	return &AccessResult{
		UserID:      claims.UserID,
		Role:        claims.Role,
		WarehouseID: claims.WarehouseID,
		SessionID:   sess.ID,
	}, nil
}

// ChangeUserRole applies a role change after checking the actor may grant
// the target role. Existing sessions keep their old claims until refresh.
func (e *Engine) ChangeUserRole(ctx context.Context, actorID, targetUserID, newRole string) error {
	actor, err := e.users.GetUserByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("actor lookup: %w", err)
	}

	if err := e.registry.ValidateRoleChange(actor.Role, newRole); err != nil {
		e.auditor.LogAdminAction(ctx, actorID, "role_change_denied", targetUserID, false, map[string]string{
			"requestedRole": newRole,
		})
		return errors.Join(ErrPermissionDenied, err)
	}

	if err := e.users.UpdateRole(ctx, targetUserID, newRole); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	e.auditor.LogAdminAction(ctx, actorID, "role_change", targetUserID, true, map[string]string{
		"newRole": newRole,
	})
	return nil
}

// SetUserActive enables or disables an account. Disabling revokes all of
// the target's sessions immediately.
func (e *Engine) SetUserActive(ctx context.Context, actorID, targetUserID string, active bool) error {
	if err := e.users.SetActive(ctx, targetUserID, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	action := "account_enabled"
	if !active {
		action = "account_disabled"
		if _, err := e.sessions.EndAllForUser(ctx, targetUserID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	e.auditor.LogAdminAction(ctx, actorID, action, targetUserID, true, nil)
	return nil
}

// RequirePasswordChange flags the target account so its next login reports
// that the password must be rotated before anything else.
func (e *Engine) RequirePasswordChange(ctx context.Context, actorID, targetUserID string) error {
	if err := e.users.SetMustChangePassword(ctx, targetUserID, true); err != nil {
		return fmt.Errorf("flag password change: %w", err)
	}
	e.auditor.LogAdminAction(ctx, actorID, "password_change_required", targetUserID, true, nil)
	return nil
}

func (e *Engine) countAccess(decision string) {
	if e.metrics != nil {
		e.metrics.AccessChecks.WithLabelValues(decision).Inc()
	}
}

// sessionError translates session package sentinels into the engine's.
func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrInactive):
		return ErrSessionInactive
	default:
		return err
	}
}
