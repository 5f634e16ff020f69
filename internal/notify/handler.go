package notify

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"knowshare/internal/backend"
	"knowshare/internal/logger"
	"knowshare/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	streamBuffer    = 64
	streamKeepAlive = 25 * time.Second
)

// Handler serves the browser-facing notification endpoints.
type Handler struct {
	hub          *Hub
	current      func(c *gin.Context) *session.Session
	unauthorized gin.HandlerFunc
	logger       *slog.Logger
}

// NewHandler creates a notification handler. current returns the request's
// session; unauthorized answers a request whose token the backend rejected.
func NewHandler(hub *Hub, current func(c *gin.Context) *session.Session, unauthorized gin.HandlerFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	if unauthorized == nil {
		unauthorized = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired", "redirect": "/auth/login"})
		}
	}
	return &Handler{hub: hub, current: current, unauthorized: unauthorized, logger: log}
}

// RegisterRoutes mounts the endpoints on a /notifications group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("", h.List)
	r.GET("/stream", h.Stream)
	r.GET("/status", h.Status)
	r.GET("/unread/count", h.UnreadCount)
	r.PUT("/read-all", h.MarkAllRead)
	r.PUT("/:id/read", h.MarkRead)
	r.DELETE("/all", h.ClearAll)
	r.DELETE("/:id", h.Delete)
}

func (h *Handler) inbox(c *gin.Context) (*Inbox, bool) {
	sess := h.current(c)
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "redirect": "/auth/login"})
		return nil, false
	}
	return h.hub.Inbox(sess), true
}

// List handles GET /api/notifications. A failed reload serves the last
// known list.
func (h *Handler) List(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	if err := in.Refresh(c.Request.Context()); err != nil {
		if backend.IsUnauthorized(err) {
			h.unauthorized(c)
			return
		}
	}
	items, _ := in.Snapshot()
	c.JSON(http.StatusOK, items)
}

// UnreadCount handles GET /api/notifications/unread/count.
func (h *Handler) UnreadCount(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	count, err := in.UnreadCount(c.Request.Context())
	if backend.IsUnauthorized(err) {
		h.unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, backend.CountResponse{Count: count})
}

// Status handles GET /api/notifications/status.
func (h *Handler) Status(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ConnectionStatus{Connected: in.Connected()})
}

// MarkRead handles PUT /api/notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	id, ok := h.id(c)
	if !ok {
		return
	}
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	h.respond(c, in, in.MarkRead(c.Request.Context(), id))
}

// MarkAllRead handles PUT /api/notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	h.respond(c, in, in.MarkAllRead(c.Request.Context()))
}

// Delete handles DELETE /api/notifications/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.id(c)
	if !ok {
		return
	}
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	h.respond(c, in, in.Delete(c.Request.Context(), id))
}

// ClearAll handles DELETE /api/notifications/all.
func (h *Handler) ClearAll(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	h.respond(c, in, in.ClearAll(c.Request.Context()))
}

// Stream handles GET /api/notifications/stream as Server-Sent Events. The
// stream ends when the client goes away, the session closes or the
// subscriber falls too far behind.
func (h *Handler) Stream(c *gin.Context) {
	in, ok := h.inbox(c)
	if !ok {
		return
	}
	sub := in.Subscribe(streamBuffer)
	defer in.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := c.Writer.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev.Data)
			c.Writer.Flush()
		}
	}
}

func (h *Handler) id(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(c *gin.Context, in *Inbox, err error) {
	if err == nil {
		_, count := in.Snapshot()
		c.JSON(http.StatusOK, backend.CountResponse{Count: count})
		return
	}

	var be *backend.Error
	switch {
	case backend.IsUnauthorized(err):
		h.unauthorized(c)
	case errors.As(err, &be) && be.Kind == backend.KindValidation:
		c.JSON(be.Status, gin.H{"error": "request rejected", "message": be.Message})
	default:
		h.logger.Warn("notification update failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad gateway"})
	}
}
