package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fidulabs/chatlab/internal/domain/session"
	"github.com/fidulabs/chatlab/internal/domain/workspace"
	"github.com/fidulabs/chatlab/internal/infrastructure/logging"
	"github.com/fidulabs/chatlab/internal/providers/identity"
	"github.com/fidulabs/chatlab/internal/shared/types"
)

// Handlers exposes the coordinator and workspace manager over HTTP.
// Every UI lifecycle entry point maps to one route here; none of them
// reach an identity provider directly.
type Handlers struct {
	coordinator *session.Coordinator
	workspaces  *workspace.Manager
	local       *identity.LocalProvider
	cloud       *identity.CloudProvider
	logger      *logging.Logger
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(
	coordinator *session.Coordinator,
	workspaces *workspace.Manager,
	local *identity.LocalProvider,
	cloud *identity.CloudProvider,
	logger *logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		coordinator: coordinator,
		workspaces:  workspaces,
		local:       local,
		cloud:       cloud,
		logger:      logger,
	}
}

// Register wires all routes onto the router.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	auth := r.Group("/auth")
	{
		auth.GET("/status", h.AuthStatus)
		auth.POST("/register", h.RegisterAccount)
		auth.POST("/login", h.Login)
		auth.POST("/restore", h.Restore)
		auth.POST("/logout", h.Logout)
		auth.GET("/oauth/url", h.OAuthURL)
		auth.GET("/oauth/callback", h.OAuthCallback)
	}

	ws := r.Group("/workspaces")
	{
		ws.GET("", h.ListWorkspaces)
		ws.POST("", h.CreateWorkspace)
		ws.POST("/switch", h.SwitchWorkspace)
	}

	r.POST("/storage/mode", h.SwitchMode)
	r.GET("/stats", h.Stats)
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuthStatus is a pure read of the coordinator state.
func (h *Handlers) AuthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"auth":        h.coordinator.GetAuthStatus(),
		"in_progress": h.coordinator.IsOperationInProgress(),
	})
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterAccount creates a local vault account.
func (h *Handlers) RegisterAccount(c *gin.Context) {
	if h.local == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "local accounts are not enabled"})
		return
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.local.Register(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"registered": true})
}

// Login authenticates against the local vault and re-runs the
// coordinator so downstream state converges before responding.
func (h *Handlers) Login(c *gin.Context) {
	if h.local == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "local accounts are not enabled"})
		return
	}

	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.local.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.ReAuthenticate(c.Request.Context()); err != nil {
		h.logger.Warn("re-authentication after login failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"auth": h.coordinator.GetAuthStatus()})
}

// Restore is the visibility-regained entry point: a debounced,
// single-flight restoration check.
func (h *Handlers) Restore(c *gin.Context) {
	restored, err := h.coordinator.CheckAndRestore(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"restored": restored,
		"auth":     h.coordinator.GetAuthStatus(),
	})
}

// Logout clears the session. Always succeeds from the UI's view.
func (h *Handlers) Logout(c *gin.Context) {
	h.coordinator.ClearAuth(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"auth": h.coordinator.GetAuthStatus()})
}

// OAuthURL hands the UI the proxy's authorization URL.
func (h *Handlers) OAuthURL(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cloud identity is not enabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.cloud.AuthorizeURL(c.Query("state"))})
}

// OAuthCallback finishes the OAuth flow: the code is exchanged at the
// proxy and the coordinator is forcibly re-run, bypassing the debounce
// window, since a fresh check is mandatory after a callback.
func (h *Handlers) OAuthCallback(c *gin.Context) {
	if h.cloud == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "cloud identity is not enabled"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	if _, err := h.cloud.ExchangeCode(c.Request.Context(), code); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.ReAuthenticate(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auth": h.coordinator.GetAuthStatus()})
}

// ListWorkspaces refreshes the registry opportunistically; stale data
// is served rather than an error.
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	workspaces, err := h.workspaces.LoadWorkspaces(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workspaces": workspaces,
		"active":     h.workspaces.ActiveWorkspace(),
	})
}

type createWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateWorkspace registers a shared workspace remotely and upserts it
// locally.
func (h *Handlers) CreateWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := h.workspaces.CreateWorkspace(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workspace": ws})
}

type switchWorkspaceRequest struct {
	// ID is nil for the virtual personal workspace.
	ID *string `json:"id"`
}

// SwitchWorkspace changes the active workspace; a failed switch leaves
// the previous workspace active.
func (h *Handlers) SwitchWorkspace(c *gin.Context) {
	var req switchWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workspaces.SwitchWorkspace(c.Request.Context(), req.ID); err != nil {
		c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": h.workspaces.ActiveWorkspace()})
}

type switchModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SwitchMode changes the active storage mode.
func (h *Handlers) SwitchMode(c *gin.Context) {
	var req switchModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workspaces.SwitchMode(c.Request.Context(), types.StorageMode(req.Mode)); err != nil {
		c.JSON(workspaceErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": h.workspaces.Mode()})
}

// Stats aggregates coordinator and registry statistics.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session":   h.coordinator.Stats(),
		"workspace": h.workspaces.Stats(),
	})
}

func workspaceErrorStatus(err error) int {
	switch {
	case errors.Is(err, workspace.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrNotAuthenticated):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
