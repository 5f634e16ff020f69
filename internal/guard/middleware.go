package guard

import (
	"net/http"
	"time"

	"knowshare/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionFunc returns the request's session, or nil.
type SessionFunc func(c *gin.Context) *session.Session

// Pages gates browser navigation with 302 redirects.
func Pages(table Table, current SessionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := table.Match(c.Request.URL.Path)
		d := Decide(current(c), route, c.Request.URL.RequestURI(), time.Now())
		if d.Outcome == Allow {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, d.Location())
		c.Abort()
	}
}

// API gates REST calls with 401/403 JSON bodies.
func API(table Table, current SessionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := table.Match(c.Request.URL.Path)
		d := Decide(current(c), route, c.Request.URL.RequestURI(), time.Now())
		switch d.Outcome {
		case Allow:
			c.Next()
		case RedirectLogin:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "authentication required",
				"redirect": LoginPath,
			})
		case RedirectUnauthorized:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "forbidden",
				"redirect": UnauthorizedPath,
			})
		default:
			c.Next()
		}
	}
}
