package api

import (
	"context"
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/services"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler holds service dependencies
type Handler struct {
	lifecycle *services.LifecycleService
	sync      *services.SyncService
	sweep     *services.SweepService
	auth      *services.AuthService
}

// NewHandler creates a new API handler
func NewHandler(lifecycle *services.LifecycleService, syncService *services.SyncService, sweep *services.SweepService, auth *services.AuthService) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		sync:      syncService,
		sweep:     sweep,
		auth:      auth,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	api := r.Group("/api/v1")
	{
		// Authentication (no auth required)
		api.POST("/auth/login", handler.Login)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(handler.auth))
	{
		protected.POST("/auth/change-password", handler.ChangePassword)

		// Domain records
		protected.GET("/domains", handler.ListDomains)
		protected.POST("/domains", handler.RegisterDomain)
		protected.GET("/domains/:id", handler.GetDomain)

		// Lifecycle operations
		protected.POST("/domains/:id/renew", handler.RenewDomain)
		protected.POST("/domains/:id/expiry-override", handler.OverrideExpiry)
		protected.POST("/domains/:id/status", handler.UpdateStatus)
		protected.POST("/domains/:id/auth-code", handler.GenerateAuthCode)
		protected.POST("/domains/:id/transfer-out", handler.TransferOut)
		protected.POST("/domains/:id/sync", handler.SyncDomain)

		// Bulk runs
		protected.POST("/sweep/sync", handler.SyncAll)
		protected.POST("/sweep/advance", handler.AdvanceLifecycle)

		// Audit trail
		protected.GET("/sync-logs", handler.ListSyncLogs)
		protected.GET("/sync-logs/verify", handler.VerifySyncLogs)
	}
}

// writeError maps an engine error onto an HTTP status
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := errs.KindOf(err)
	switch kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindTransition, errs.KindConflict:
		status = http.StatusConflict
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindRegistrarUnavailable:
		status = http.StatusBadGateway
	case errs.KindPersistence:
		status = http.StatusInternalServerError
	default:
		kind = "internal"
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": errs.KindValidation})
}

// ListDomains retrieves domains, optionally filtered by ?status=
func (h *Handler) ListDomains(c *gin.Context) {
	var filter *models.Status
	if raw := c.Query("status"); raw != "" {
		status := models.Status(strings.ToLower(raw))
		filter = &status
	}

	domains, err := h.lifecycle.ListDomains(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, domains)
}

// RegisterDomain records a completed registration or incoming transfer
func (h *Handler) RegisterDomain(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, err := h.lifecycle.RegisterDomain(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetDomain retrieves a single domain
func (h *Handler) GetDomain(c *gin.Context) {
	rec, err := h.lifecycle.GetDomain(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RenewDomain extends a registration at the registrar
func (h *Handler) RenewDomain(c *gin.Context) {
	var req struct {
		Years int `json:"years" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "years is required")
		return
	}

	rec, err := h.lifecycle.RenewDomain(c.Request.Context(), c.Param("id"), req.Years)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// OverrideExpiry sets the expiry date without the registrar
func (h *Handler) OverrideExpiry(c *gin.Context) {
	var req struct {
		ExpiryDate string `json:"expiry_date" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "expiry_date is required")
		return
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	rec, err := h.lifecycle.OverrideExpiryDate(c.Request.Context(), c.Param("id"), expiry, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// UpdateStatus applies an administrative status change. force=true uses the escape hatch.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
		Force  bool   `json:"force"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	status := models.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	var (
		rec *models.DomainRecord
		err error
	)
	if req.Force {
		rec, err = h.lifecycle.ForceDomainStatus(c.Request.Context(), c.Param("id"), status, req.Reason)
	} else {
		rec, err = h.lifecycle.UpdateDomainStatus(c.Request.Context(), c.Param("id"), status, req.Reason)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GenerateAuthCode returns a transfer authorization code
func (h *Handler) GenerateAuthCode(c *gin.Context) {
	code, err := h.lifecycle.GenerateAuthCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"auth_code": code})
}

// TransferOut starts an outgoing transfer
func (h *Handler) TransferOut(c *gin.Context) {
	rec, err := h.lifecycle.InitiateTransferOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// SyncDomain reconciles one domain with its registrar
func (h *Handler) SyncDomain(c *gin.Context) {
	res, err := h.sync.Synchronize(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// SyncAll runs the registrar sweep synchronously
func (h *Handler) SyncAll(c *gin.Context) {
	report, err := h.sweep.SyncAll(c.Request.Context())
	writeReport(c, report, err)
}

// AdvanceLifecycle applies time-driven transitions as of now
func (h *Handler) AdvanceLifecycle(c *gin.Context) {
	report, err := h.sweep.AdvanceLifecycle(c.Request.Context(), time.Now())
	writeReport(c, report, err)
}

// writeReport answers with a sweep report. A run cut short by the request
// context still returns what it got through, with 503.
func writeReport(c *gin.Context, report *services.SweepReport, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case report != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "cancelled", "report": report})
	default:
		writeError(c, err)
	}
}

// VerifySyncLogs recomputes the audit hash chain
func (h *Handler) VerifySyncLogs(c *gin.Context) {
	report, err := h.lifecycle.VerifySyncLog(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListSyncLogs returns audit entries newest first, optionally for ?domain_id=
func (h *Handler) ListSyncLogs(c *gin.Context) {
	entries, err := h.lifecycle.ListSyncLogs(c.Request.Context(), c.Query("domain_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&loginReq); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	token, user, err := h.auth.Authenticate(c.Request.Context(), loginReq.Username, loginReq.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// ChangePassword changes the calling admin's password
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "old_password and new_password are required")
		return
	}

	err := h.auth.ChangePassword(c.Request.Context(), c.GetString(usernameKey), req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "password changed, log in again with the new password"})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		writeError(c, err)
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.New("expiry_date must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}
