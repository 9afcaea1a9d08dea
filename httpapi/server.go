// Package httpapi is the gin HTTP surface over the authcore engine.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	authcore "github.com/maintainpro/authcore"
	"github.com/maintainpro/authcore/security"
)

// Server holds the handler dependencies.
type Server struct {
	engine *authcore.Engine
	log    zerolog.Logger
	csrf   *security.CSRFIssuer
	limits *security.RateLimiter
}

// NewServer wires the handlers. csrfKey protects browser form flows; pass at
// least 32 bytes.
func NewServer(engine *authcore.Engine, log zerolog.Logger, csrfKey []byte) (*Server, error) {
	issuer, err := security.NewCSRFIssuer(csrfKey)
	if err != nil {
		return nil, err
	}
	return &Server{
		engine: engine,
		log:    log,
		csrf:   issuer,
		limits: security.NewRateLimiter(security.DefaultRateLimitConfig()),
	}, nil
}

// Router builds the route table with the standard middleware chain.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), securityHeaders())

	r.GET("/healthz", s.handleHealth)
	if m := s.engine.Metrics(); m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api/auth", s.rateLimit())
	api.POST("/login", s.handleLogin)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/register", s.handleRegister)
	api.POST("/password-reset/request", s.handleResetRequest)
	api.POST("/password-reset/confirm", s.handleResetConfirm)

	authed := api.Group("", s.authenticate(), s.csrfProtect())
	authed.GET("/csrf", s.handleCSRFToken)
	authed.POST("/logout", s.handleLogout)
	authed.POST("/logout-all", s.handleLogoutAll)
	authed.POST("/password/change", s.handleChangePassword)
	authed.POST("/mfa/setup", s.handleMFASetup)
	authed.POST("/mfa/enable", s.handleMFAEnable)
	authed.POST("/mfa/disable", s.handleMFADisable)
	authed.POST("/mfa/backup-codes", s.handleBackupCodes)
	authed.GET("/sessions", s.handleListSessions)
	authed.POST("/validate", s.handleValidate)

	adminAudit := r.Group("/api/audit", s.authenticate(), s.rateLimit())
	adminAudit.GET("/entries", s.handleAuditQuery)
	adminAudit.GET("/stats", s.handleAuditStats)
	adminAudit.GET("/alerts", s.handleAuditAlerts)
	adminAudit.GET("/export", s.handleAuditExport)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleCSRFToken(c *gin.Context) {
	token, err := s.csrf.Issue(currentIdentity(c).SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "csrf issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

// writeError maps engine sentinels onto HTTP statuses. Unknown errors become
// opaque 500s; the detail stays in the server log.
func (s *Server) writeError(c *gin.Context, err error) {
	var failure *authcore.LoginFailure
	if errors.As(err, &failure) {
		c.Header("Retry-After", failure.RetryAfter.Round(time.Second).String())
	}

	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrInvalidAccessToken),
		errors.Is(err, authcore.ErrAccessTokenExpired),
		errors.Is(err, authcore.ErrInvalidRefreshToken),
		errors.Is(err, authcore.ErrRefreshTokenExpired),
		errors.Is(err, authcore.ErrSessionNotFound),
		errors.Is(err, authcore.ErrSessionExpired),
		errors.Is(err, authcore.ErrSessionInactive):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrMFARequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "mfaRequired": true})
	case errors.Is(err, authcore.ErrInvalidMFAToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrAccountLocked):
		body := gin.H{"error": err.Error(), "accountLocked": true}
		if failure != nil {
			body["lockoutTimeRemaining"] = int(failure.RetryAfter.Round(time.Second).Seconds())
		}
		c.JSON(http.StatusLocked, body)
	case errors.Is(err, authcore.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrThreatBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrWeakPassword),
		errors.Is(err, authcore.ErrPasswordReused),
		errors.Is(err, authcore.ErrResetTokenInvalid),
		errors.Is(err, authcore.ErrInvalidRequest),
		errors.Is(err, authcore.ErrMFANotEnabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, authcore.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
