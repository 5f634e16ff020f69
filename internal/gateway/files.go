package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"knowshare/internal/logger"
	"knowshare/internal/storage"

	"github.com/gin-gonic/gin"
)

// Presigner creates time-limited download links. storage.Service satisfies it.
type Presigner interface {
	PresignDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// FileLink is the body of GET /api/files/url.
type FileLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FilesHandler hands out presigned links for document files.
type FilesHandler struct {
	presigner Presigner
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewFilesHandler creates a files handler. A nil presigner means object
// storage is not configured.
func NewFilesHandler(presigner Presigner, ttl time.Duration, log *slog.Logger) *FilesHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if log == nil {
		log = logger.Discard()
	}
	return &FilesHandler{presigner: presigner, ttl: ttl, logger: log, now: time.Now}
}

// RegisterRoutes mounts the endpoints on a /files group.
func (h *FilesHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/url", h.URL)
}

// URL handles GET /api/files/url?key=
func (h *FilesHandler) URL(c *gin.Context) {
	if h.presigner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage is not configured"})
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	if _, err := storage.CleanKey(key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file key", "message": err.Error()})
		return
	}

	issued := h.now()
	link, err := h.presigner.PresignDownloadURL(c.Request.Context(), key, h.ttl)
	if errors.Is(err, storage.ErrInvalidKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file key"})
		return
	}
	if err != nil {
		h.logger.Error("presign failed", "key", key, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not create download link"})
		return
	}

	c.JSON(http.StatusOK, FileLink{URL: link, ExpiresAt: issued.Add(h.ttl).UTC()})
}
