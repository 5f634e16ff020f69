package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"knowshare/internal/backend"
	"knowshare/internal/logger"
	"knowshare/internal/session"

	"github.com/gin-gonic/gin"
)

// LoginRequest is the request payload for POST /auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the request payload for POST /auth/register
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// AuthResponse is the response after successful authentication. The
// bearer token stays server-side.
type AuthResponse struct {
	User         session.User `json:"user"`
	TokenExpiry  *time.Time   `json:"tokenExpiry,omitempty"`
	TokenExpired bool         `json:"tokenExpired"`
}

// Cookie describes the session cookie.
type Cookie struct {
	Name   string
	MaxAge int
	Secure bool
}

// Set writes the session cookie.
func (ck Cookie) Set(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.name(), sessionID, ck.MaxAge, "/", "", ck.Secure, true)
}

// Clear expires the session cookie.
func (ck Cookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.name(), "", -1, "/", "", ck.Secure, true)
}

func (ck Cookie) name() string {
	if ck.Name == "" {
		return "session_id"
	}
	return ck.Name
}

// Handler handles authentication-related HTTP requests
type Handler struct {
	service Service
	cookie  Cookie
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new authentication handler
func NewHandler(service Service, cookie Cookie, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{service: service, cookie: cookie, logger: log, now: time.Now}
}

// RegisterRoutes mounts the auth endpoints on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/login", h.Login)
	r.POST("/register", h.Register)
	r.POST("/logout", h.Logout)
	r.GET("/me", h.Me)
}

// Login handles POST /auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("login failed", "username", req.Username, "error", err)
		h.writeAuthError(c, err, "invalid username or password")
		return
	}
	h.replace(c, sess)
}

// Register handles POST /auth/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.service.Register(c.Request.Context(), backend.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Info("registration failed", "username", req.Username, "error", err)
		h.writeAuthError(c, err, "registration failed")
		return
	}
	h.replace(c, sess)
}

// replace points the cookie at the new session and ends the one it held
// before, if any.
func (h *Handler) replace(c *gin.Context, sess *session.Session) {
	if prior, err := c.Cookie(h.cookie.name()); err == nil && prior != "" && prior != sess.ID {
		if err := h.service.Logout(c.Request.Context(), prior); err != nil {
			h.logger.Warn("failed to end previous session", "session_id", prior, "error", err)
		}
	}
	h.cookie.Set(c, sess.ID)
	c.JSON(http.StatusOK, h.response(sess))
}

// Logout handles POST /auth/logout. It always succeeds and always clears
// the cookie.
func (h *Handler) Logout(c *gin.Context) {
	sessionID, err := c.Cookie(h.cookie.name())
	h.cookie.Clear(c)
	if err != nil || sessionID == "" {
		c.JSON(http.StatusOK, gin.H{"message": "already logged out"})
		return
	}

	if err := h.service.Logout(c.Request.Context(), sessionID); err != nil {
		h.logger.Error("logout failed", "session_id", sessionID, "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Me handles GET /auth/me. When the backend is unreachable the cached
// session user is returned.
func (h *Handler) Me(c *gin.Context) {
	sess := CurrentSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "redirect": "/auth/login"})
		return
	}

	fresh, err := h.service.Me(c.Request.Context(), sess.ID)
	switch {
	case err == nil:
		sess = fresh
	case errors.Is(err, ErrNotAuthenticated):
		h.cookie.Clear(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "redirect": "/auth/login"})
		return
	case backend.IsUnauthorized(err):
		h.cookie.Clear(c)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired", "redirect": "/auth/login"})
		return
	case backend.KindOf(err) == backend.KindTransport:
		h.logger.Warn("backend unreachable, serving cached user", "session_id", sess.ID, "error", err)
	default:
		h.logger.Error("refresh user failed", "session_id", sess.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad gateway"})
		return
	}

	c.JSON(http.StatusOK, h.response(sess))
}

func (h *Handler) response(sess *session.Session) AuthResponse {
	resp := AuthResponse{User: sess.User(), TokenExpired: sess.TokenExpired(h.now())}
	if !sess.TokenExpiry.IsZero() {
		exp := sess.TokenExpiry
		resp.TokenExpiry = &exp
	}
	return resp
}

// writeAuthError maps a failed login or registration to a response that
// carries the backend's message for inline display.
func (h *Handler) writeAuthError(c *gin.Context, err error, fallback string) {
	var be *backend.Error
	if !errors.As(err, &be) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	msg := be.Message
	if msg == "" {
		msg = fallback
	}
	switch be.Kind {
	case backend.KindUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials", "message": msg})
	case backend.KindValidation:
		c.JSON(be.Status, gin.H{"error": "validation failed", "message": msg})
	case backend.KindTransport:
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad gateway", "message": "backend unreachable"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad gateway", "message": msg})
	}
}
