package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maintainpro/authcore/security"
)

const (
	identityKey   = "authcore.identity"
	cookieAuthKey = "authcore.cookieAuth"
	accessCookie  = "access_token"
	csrfHeader    = "X-CSRF-Token"
)

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID      string
	Role        string
	WarehouseID string
	SessionID   string
	AccessToken string
}

func currentIdentity(c *gin.Context) Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(Identity)
	return id
}

// authenticate verifies the bearer token (or the access_token cookie for
// browser sessions) and confirms the backing session is live.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, fromCookie := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		// A token alone is not enough; the session behind it must still
		// be live. Permission checks happen per handler.
		res, err := s.engine.ValidateSession(c.Request.Context(), token)
		if err != nil {
			s.writeError(c, err)
			c.Abort()
			return
		}

		c.Set(identityKey, Identity{
			UserID:      res.UserID,
			Role:        res.Role,
			WarehouseID: res.WarehouseID,
			SessionID:   res.SessionID,
			AccessToken: token,
		})
		c.Set(cookieAuthKey, fromCookie)
		c.Next()
	}
}

func extractToken(c *gin.Context) (token string, fromCookie bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer "), false
	}
	if cookie, err := c.Cookie(accessCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// csrfProtect enforces the double-submit token on mutating requests that
// authenticated via cookie. Pure bearer clients carry no ambient credential
// and are exempt.
func (s *Server) csrfProtect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || !c.GetBool(cookieAuthKey) {
			c.Next()
			return
		}
		token := c.GetHeader(csrfHeader)
		if token == "" || !s.csrf.Verify(token, currentIdentity(c).SessionID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "csrf token missing or invalid"})
			return
		}
		c.Next()
	}
}

// rateLimit caps request throughput per caller, keyed by authenticated user
// when known and source IP otherwise.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := currentIdentity(c).UserID
		if key == "" {
			key = c.ClientIP()
		}
		if !s.limits.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// securityHeaders applies the standard response header set.
func securityHeaders() gin.HandlerFunc {
	headers := security.ResponseHeaders()
	return func(c *gin.Context) {
		for k, v := range headers {
			c.Header(k, v)
		}
		c.Next()
	}
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := s.log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
