package auth

import (
	"errors"
	"log/slog"

	"knowshare/internal/session"

	"github.com/gin-gonic/gin"
)

const contextKey = "session"

// SessionMiddleware loads the session named by the cookie into the gin
// context. It never aborts: gating is the guard's job.
func SessionMiddleware(svc Service, cookieName string, logger *slog.Logger) gin.HandlerFunc {
	if cookieName == "" {
		cookieName = "session_id"
	}
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cookieName)
		if err != nil || sessionID == "" {
			c.Next()
			return
		}

		sess, err := svc.Current(c.Request.Context(), sessionID)
		if err != nil {
			if !errors.Is(err, ErrNotAuthenticated) && logger != nil {
				logger.Warn("session lookup failed", "error", err)
			}
			c.Next()
			return
		}

		c.Set(contextKey, sess)
		c.Set("user_id", sess.UserID)
		c.Next()
	}
}

// CurrentSession returns the session loaded by SessionMiddleware, or nil.
func CurrentSession(c *gin.Context) *session.Session {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}
