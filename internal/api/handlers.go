package api

import (
	"net/http"
	"strconv"

	"subhub/internal/logger"
	"subhub/internal/metrics"
	"subhub/internal/models"
	"subhub/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler holds service dependencies
type Handler struct {
	db          *gorm.DB
	registry    *services.Registry
	allocator   *services.Allocator
	reporter    *services.Reporter
	authService *services.AuthService
}

// NewHandler creates a new API handler
func NewHandler(db *gorm.DB, registry *services.Registry, allocator *services.Allocator, reporter *services.Reporter, authService *services.AuthService) *Handler {
	return &Handler{
		db:          db,
		registry:    registry,
		allocator:   allocator,
		reporter:    reporter,
		authService: authService,
	}
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/healthz", handler.Health)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")

	// Authentication (no session required)
	api.POST("/auth/register", handler.Register)
	api.POST("/auth/login", handler.Login)
	api.POST("/auth/validate", handler.ValidateToken)

	// Everything below requires a session
	authed := api.Group("")
	authed.Use(AuthMiddleware(handler.authService))

	authed.POST("/domains/donated", handler.SubmitDomain)
	authed.GET("/domains/donated", handler.ListDomains)
	authed.PATCH("/domains/:id", handler.PatchDomain)
	authed.GET("/domains/:id", handler.UsageStats)
	authed.POST("/domains/check-subdomain", handler.CheckSubdomain)
	authed.POST("/domains/claim", handler.ClaimSubdomain)
}

// statusFor maps error kinds to HTTP status codes
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindAuthRequired:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindInvalidFormat, services.KindInvalidDomainName, services.KindInvalidCredentials:
		return http.StatusBadRequest
	case services.KindAlreadyTaken:
		return http.StatusConflict
	case services.KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal || kind == services.KindExternalService {
		logger.L().Error("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(statusFor(kind), gin.H{"error": gin.H{
		"kind":    string(kind),
		"message": services.MessageOf(err),
	}})
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Register creates a new user account and returns a session token
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "username and password are required"))
		return
	}
	if len(req.Password) < 6 {
		respondError(c, services.E(services.KindInvalidFormat, "password must be at least 6 characters"))
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user := models.User{
		Username: req.Username,
		Password: hashed,
		Email:    req.Email,
		IsActive: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if services.IsDuplicateKey(err) {
			respondError(c, services.E(services.KindAlreadyTaken, "username is taken"))
			return
		}
		respondError(c, err)
		return
	}

	token, err := h.authService.GenerateToken(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  gin.H{"id": user.ID, "username": user.Username, "email": user.Email},
	})
}

// Login handles user login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "username and password are required"))
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		respondError(c, services.E(services.KindAuthRequired, "invalid username or password"))
		return
	}
	if !user.IsActive {
		respondError(c, services.E(services.KindAuthRequired, "account is disabled"))
		return
	}
	if !h.authService.CheckPassword(user.Password, req.Password) {
		respondError(c, services.E(services.KindAuthRequired, "invalid username or password"))
		return
	}

	token, err := h.authService.GenerateToken(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  gin.H{"id": user.ID, "username": user.Username, "email": user.Email},
	})
}

// ValidateToken validates a session token
func (h *Handler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "token is required"))
		return
	}

	claims, err := h.authService.ValidateToken(req.Token)
	if err != nil {
		respondError(c, services.E(services.KindAuthRequired, "invalid or expired token"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"user":  gin.H{"id": claims.UserID, "username": claims.Username},
	})
}

// SubmitDomain donates a new domain to the registry
func (h *Handler) SubmitDomain(c *gin.Context) {
	var req struct {
		DomainName      string `json:"domain_name" binding:"required"`
		ZoneID          string `json:"cloudflare_zone_id" binding:"required"`
		APIToken        string `json:"cloudflare_api_token" binding:"required"`
		MaxSubdomains   int    `json:"max_subdomains"`
		DonationMessage string `json:"donation_message"`
		ContactEmail    string `json:"contact_email"`
		TermsOfUse      string `json:"terms_of_use"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "domain_name, cloudflare_zone_id and cloudflare_api_token are required"))
		return
	}

	domain, err := h.registry.SubmitDomain(c.Request.Context(), sessionUserID(c), services.SubmitDomainInput{
		DomainName:      req.DomainName,
		ZoneID:          req.ZoneID,
		APIToken:        req.APIToken,
		MaxSubdomains:   req.MaxSubdomains,
		DonationMessage: req.DonationMessage,
		ContactEmail:    req.ContactEmail,
		TermsOfUse:      req.TermsOfUse,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"domain": domain.View()})
}

// ListDomains lists donated domains: ?type=available (default) or
// ?type=my-domains for the caller's own donations.
func (h *Handler) ListDomains(c *gin.Context) {
	listType := c.DefaultQuery("type", "available")

	var (
		domains []models.DomainView
		err     error
	)
	switch listType {
	case "available":
		domains, err = h.reporter.ListAvailable()
	case "my-domains":
		domains, err = h.reporter.ListOwned(sessionUserID(c))
	default:
		respondError(c, services.E(services.KindInvalidFormat, "type must be available or my-domains"))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"domains": domains})
}

// PatchDomain applies an owner action: toggle-status or update-settings
func (h *Handler) PatchDomain(c *gin.Context) {
	domainID, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Action          string  `json:"action" binding:"required"`
		IsActive        *bool   `json:"is_active"`
		MaxSubdomains   *int    `json:"max_subdomains"`
		DonationMessage *string `json:"donation_message"`
		ContactEmail    *string `json:"contact_email"`
		TermsOfUse      *string `json:"terms_of_use"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "action is required"))
		return
	}

	if !h.requireOwner(c, domainID) {
		return
	}

	switch req.Action {
	case "toggle-status":
		if req.IsActive == nil {
			respondError(c, services.E(services.KindInvalidFormat, "is_active is required for toggle-status"))
			return
		}
		if err := h.registry.ToggleStatus(domainID, *req.IsActive); err != nil {
			respondError(c, err)
			return
		}
	case "update-settings":
		err := h.registry.UpdateSettings(domainID, services.DomainSettingsPatch{
			MaxSubdomains:   req.MaxSubdomains,
			DonationMessage: req.DonationMessage,
			ContactEmail:    req.ContactEmail,
			TermsOfUse:      req.TermsOfUse,
		})
		if err != nil {
			respondError(c, err)
			return
		}
	default:
		respondError(c, services.E(services.KindInvalidFormat, "action must be toggle-status or update-settings"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UsageStats returns the owner's management view of a domain's claims
func (h *Handler) UsageStats(c *gin.Context) {
	domainID, ok := parseID(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, domainID) {
		return
	}

	usage, err := h.reporter.UsageStats(domainID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

// CheckSubdomain reports whether a label is free under a domain. This is
// a non-authoritative hint; the claim path re-checks atomically.
func (h *Handler) CheckSubdomain(c *gin.Context) {
	var req struct {
		DomainID  uint   `json:"domain_id" binding:"required"`
		Subdomain string `json:"subdomain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "domain_id and subdomain are required"))
		return
	}

	available, err := h.allocator.CheckAvailability(req.DomainID, req.Subdomain)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": available})
}

// ClaimSubdomain reserves a label under a donated domain for the caller
func (h *Handler) ClaimSubdomain(c *gin.Context) {
	var req struct {
		DomainID  uint   `json:"domain_id" binding:"required"`
		Subdomain string `json:"subdomain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "domain_id and subdomain are required"))
		return
	}

	claim, err := h.allocator.Claim(c.Request.Context(), req.DomainID, req.Subdomain, sessionUserID(c))
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues(claimOutcome(err)).Inc()
		respondError(c, err)
		return
	}

	metrics.ClaimsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusCreated, gin.H{"claim": claim})
}

func claimOutcome(err error) string {
	switch services.KindOf(err) {
	case services.KindAlreadyTaken:
		return "already_taken"
	case services.KindExternalService:
		return "external_error"
	case services.KindInvalidFormat, services.KindNotFound:
		return "invalid"
	}
	return "error"
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, services.E(services.KindInvalidFormat, "invalid domain ID"))
		return 0, false
	}
	return uint(id), true
}

// requireOwner enforces that the session user owns the domain. It writes
// the error response itself and reports whether to continue.
func (h *Handler) requireOwner(c *gin.Context, domainID uint) bool {
	domain, err := h.registry.GetDomain(domainID)
	if err != nil {
		respondError(c, err)
		return false
	}
	if domain.OwnerID != sessionUserID(c) {
		respondError(c, services.E(services.KindForbidden, "only the domain owner may do this"))
		return false
	}
	return true
}
