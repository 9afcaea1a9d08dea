package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	authcore "github.com/maintainpro/authcore"
	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/session"
)

type loginBody struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	MFAToken   string `json:"mfaToken"`
	RememberMe bool   `json:"rememberMe"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	res, err := s.engine.Login(c.Request.Context(), authcore.LoginRequest{
		Email:      body.Email,
		Password:   body.Password,
		MFAToken:   body.MFAToken,
		RememberMe: body.RememberMe,
		Device: session.DeviceInfo{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		},
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":          res.User.ID,
			"email":       res.User.Email,
			"firstName":   res.User.FirstName,
			"lastName":    res.User.LastName,
			"role":        res.User.Role,
			"warehouseId": res.User.WarehouseID,
		},
		"tokens": gin.H{
			"accessToken":  res.Tokens.AccessToken,
			"refreshToken": res.Tokens.RefreshToken,
			"expiresAt":    res.Tokens.ExpiresAt,
		},
		"sessionId":          res.Session.ID,
		"suspicious":         res.Suspicious,
		"mustChangePassword": res.MustChangePassword,
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}

	pair, err := s.engine.RefreshToken(c.Request.Context(), body.RefreshToken, c.ClientIP())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.ExpiresAt,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	id := currentIdentity(c)
	if err := s.engine.Logout(c.Request.Context(), id.AccessToken, c.ClientIP()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleLogoutAll(c *gin.Context) {
	id := currentIdentity(c)
	n, err := s.engine.LogoutAll(c.Request.Context(), id.UserID, c.ClientIP())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionsEnded": n})
}

func (s *Server) handleRegister(c *gin.Context) {
	var body struct {
		Email       string `json:"email" binding:"required"`
		Password    string `json:"password" binding:"required"`
		FirstName   string `json:"firstName"`
		LastName    string `json:"lastName"`
		Role        string `json:"role" binding:"required"`
		WarehouseID string `json:"warehouseId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password and role are required"})
		return
	}

	user, err := s.engine.Register(c.Request.Context(), authcore.RegisterRequest{
		Email:       body.Email,
		Password:    body.Password,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		Role:        body.Role,
		WarehouseID: body.WarehouseID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

func (s *Server) handleResetRequest(c *gin.Context) {
	var body struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	// The response never reveals whether the account exists; the token
	// travels out of band.
	if _, err := s.engine.RequestPasswordReset(c.Request.Context(), body.Email); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a reset link has been sent"})
}

func (s *Server) handleResetConfirm(c *gin.Context) {
	var body struct {
		Email       string `json:"email" binding:"required"`
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, token and newPassword are required"})
		return
	}

	if err := s.engine.ConfirmPasswordReset(c.Request.Context(), body.Email, body.Token, body.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (s *Server) handleChangePassword(c *gin.Context) {
	var body struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currentPassword and newPassword are required"})
		return
	}

	id := currentIdentity(c)
	if err := s.engine.ChangePassword(c.Request.Context(), id.UserID, body.CurrentPassword, body.NewPassword, id.SessionID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

func (s *Server) handleMFASetup(c *gin.Context) {
	var body struct {
		Type        string `json:"type"`
		PhoneNumber string `json:"phoneNumber"`
	}
	// Empty body means TOTP enrollment.
	_ = c.ShouldBindJSON(&body)

	id := currentIdentity(c)
	setup, err := s.engine.SetupMFA(c.Request.Context(), id.UserID, mfa.Type(body.Type), body.PhoneNumber)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      setup.Secret,
		"otpauthUri":  setup.OTPAuthURI,
		"qrCodeUrl":   setup.QRCodeURL,
		"backupCodes": setup.BackupCodes,
	})
}

func (s *Server) handleMFAEnable(c *gin.Context) {
	var body struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	id := currentIdentity(c)
	if err := s.engine.EnableMFA(c.Request.Context(), id.UserID, body.Code); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mfaEnabled": true})
}

func (s *Server) handleMFADisable(c *gin.Context) {
	var body struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	id := currentIdentity(c)
	if err := s.engine.DisableMFA(c.Request.Context(), id.UserID, body.Password); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mfaEnabled": false})
}

func (s *Server) handleBackupCodes(c *gin.Context) {
	id := currentIdentity(c)
	codes, err := s.engine.RegenerateBackupCodes(c.Request.Context(), id.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backupCodes": codes})
}

func (s *Server) handleListSessions(c *gin.Context) {
	id := currentIdentity(c)
	sessions, err := s.engine.Sessions().ListForUser(c.Request.Context(), id.UserID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{
			"id":             sess.ID,
			"device":         sess.Device,
			"ipAddress":      sess.IPAddress,
			"location":       sess.Location,
			"current":        sess.ID == id.SessionID,
			"createdAt":      sess.CreatedAt,
			"lastAccessedAt": sess.LastAccessedAt,
			"expiresAt":      sess.ExpiresAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

type validateBody struct {
	Resource          string `json:"resource" binding:"required"`
	Action            string `json:"action" binding:"required"`
	ResourceID        string `json:"resourceId"`
	ResourceOwnerID   string `json:"resourceOwnerId"`
	ResourceWarehouse string `json:"resourceWarehouse"`
}

// handleValidate is the authorization check other MaintainPro services call
// before touching a resource.
func (s *Server) handleValidate(c *gin.Context) {
	var body validateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource and action are required"})
		return
	}

	id := currentIdentity(c)
	res, err := s.engine.ValidateAccess(c.Request.Context(), authcore.AccessRequest{
		AccessToken:       id.AccessToken,
		Resource:          body.Resource,
		Action:            body.Action,
		ResourceID:        body.ResourceID,
		ResourceOwnerID:   body.ResourceOwnerID,
		ResourceWarehouse: body.ResourceWarehouse,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed":     true,
		"userId":      res.UserID,
		"role":        res.Role,
		"warehouseId": res.WarehouseID,
	})
}

// requireAuditAccess gates the audit endpoints behind the audit_logs:read
// permission; in the default role table only admin holds it.
func (s *Server) requireAuditAccess(c *gin.Context) bool {
	id := currentIdentity(c)
	_, err := s.engine.ValidateAccess(c.Request.Context(), authcore.AccessRequest{
		AccessToken: id.AccessToken,
		Resource:    "audit_logs",
		Action:      "read",
	})
	if err != nil {
		s.writeError(c, err)
		return false
	}
	return true
}

func (s *Server) handleAuditQuery(c *gin.Context) {
	if !s.requireAuditAccess(c) {
		return
	}

	filter := auditFilterFromQuery(c)
	entries, total, err := s.engine.Auditor().Query(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total": total, "page": filter.Page})
}

func (s *Server) handleAuditStats(c *gin.Context) {
	if !s.requireAuditAccess(c) {
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if hours, err := strconv.Atoi(c.Query("hours")); err == nil && hours > 0 {
		since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}
	stats, err := s.engine.Auditor().Stats(c.Request.Context(), since)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAuditAlerts(c *gin.Context) {
	if !s.requireAuditAccess(c) {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	alerts, err := s.engine.Auditor().SecurityAlerts(c.Request.Context(), time.Now().Add(-24*time.Hour), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleAuditExport(c *gin.Context) {
	if !s.requireAuditAccess(c) {
		return
	}

	format := audit.ExportFormat(c.DefaultQuery("format", "json"))
	switch format {
	case audit.FormatCSV:
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="audit-export.csv"`)
	case audit.FormatJSON:
		c.Header("Content-Type", "application/json")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
		return
	}

	if err := s.engine.Auditor().Export(c.Request.Context(), auditFilterFromQuery(c), format, c.Writer); err != nil {
		s.writeError(c, err)
	}
}

func auditFilterFromQuery(c *gin.Context) audit.Filter {
	f := audit.Filter{
		UserID:    c.Query("userId"),
		Action:    c.Query("action"),
		Resource:  c.Query("resource"),
		Category:  audit.Category(c.Query("category")),
		RiskLevel: audit.RiskLevel(c.Query("riskLevel")),
	}
	if page, err := strconv.Atoi(c.Query("page")); err == nil {
		f.Page = page
	}
	if size, err := strconv.Atoi(c.Query("pageSize")); err == nil {
		f.PageSize = size
	}
	if since, err := time.Parse(time.RFC3339, c.Query("since")); err == nil {
		f.Since = since
	}
	if until, err := time.Parse(time.RFC3339, c.Query("until")); err == nil {
		f.Until = until
	}
	if success := c.Query("success"); success != "" {
		b := success == "true"
		f.Success = &b
	}
	return f
}
