package authcore

import (
	"context"
	"fmt"

	"github.com/maintainpro/authcore/jwt"
)

// RefreshToken exchanges a valid refresh token for a fresh pair. The backing
// session must still be live; its deadline is extended on success.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string, ip string) (*jwt.TokenPair, error) {
	if !e.limiter.Allow("refresh:" + ip) {
		e.countRefresh("rate_limited")
		return nil, ErrRateLimited
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		e.countRefresh("invalid")
		return nil, err
	}

	sess, err := e.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		e.countRefresh("session_gone")
		return nil, sessionError(err)
	}

	// Role and warehouse come from the live user record so a refresh picks
	// up privilege changes instead of carrying stale claims forward.
	user, err := e.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if !user.Active {
		_ = e.sessions.End(ctx, sess.ID)
		return nil, ErrAccountInactive
	}

	if _, err := e.sessions.Refresh(ctx, sess.ID, false); err != nil {
		return nil, sessionError(err)
	}

	pair, err := e.tokens.GeneratePair(jwt.Payload{
		UserID:      user.ID,
		Role:        user.Role,
		WarehouseID: user.WarehouseID,
		SessionID:   sess.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}

	e.countRefresh("success")
	return &pair, nil
}

// Logout ends the session named by the access token. Expired tokens are
// still accepted so a stale client can always log out.
func (e *Engine) Logout(ctx context.Context, accessToken, ip string) error {
	claims, err := e.tokens.VerifyAccessAllowExpired(accessToken)
	if err != nil {
		return err
	}

	if err := e.sessions.End(ctx, claims.SessionID); err != nil {
		return sessionError(err)
	}
	e.countSessionEnd("logout")
	e.auditor.LogLogin(ctx, claims.UserID, "logout", ip, "", true, nil)
	return nil
}

// LogoutAll revokes every session belonging to the user.
func (e *Engine) LogoutAll(ctx context.Context, userID, ip string) (int, error) {
	n, err := e.sessions.EndAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("end sessions: %w", err)
	}
	for i := 0; i < n; i++ {
		e.countSessionEnd("logout_all")
	}
	e.auditor.LogAdminAction(ctx, userID, "logout_all_sessions", userID, true, map[string]string{
		"count": fmt.Sprint(n),
	})
	return n, nil
}

func (e *Engine) countRefresh(result string) {
	if e.metrics != nil {
		e.metrics.RefreshTotal.WithLabelValues(result).Inc()
	}
}

func (e *Engine) countSessionEnd(cause string) {
	if e.metrics != nil {
		e.metrics.SessionsEnded.WithLabelValues(cause).Inc()
	}
}
