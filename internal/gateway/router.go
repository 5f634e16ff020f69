// Package gateway implements the web gateway in front of the Knowledge
// Sharing backend. It owns the browser session cookie, gates routes by role,
// proxies REST calls with the session's bearer token and serves the
// notification inbox.
package gateway

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"knowshare/internal/auth"
	"knowshare/internal/backend"
	"knowshare/internal/guard"
	"knowshare/internal/logger"
	"knowshare/internal/notify"

	"github.com/gin-gonic/gin"
)

// proxied lists the backend resources passed through unchanged under /api.
var proxied = []string{
	"documents", "comments", "ratings", "favorites", "search",
	"groups", "tags", "users", "admin",
}

// Deps are the components the router wires together.
type Deps struct {
	Auth           auth.Service
	Cookie         auth.Cookie
	Hub            *notify.Hub
	Resolver       backend.Resolver
	Transport      http.RoundTripper // nil for the default proxy transport
	BackendTimeout time.Duration
	Files          Presigner // nil when object storage is off
	LinkTTL        time.Duration
	CORSOrigins    []string
	StaticDir      string
	Health         []HealthCheck
	Logger         *slog.Logger
}

// SetupRouter configures and returns the gateway router
func SetupRouter(d Deps) *gin.Engine {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware(log))
	if len(d.CORSOrigins) > 0 {
		r.Use(CORSMiddleware(d.CORSOrigins))
	}

	sessions := auth.SessionMiddleware(d.Auth, d.Cookie.Name, log)
	proxyHandler := NewProxyHandler(d.Resolver, d.Transport, d.BackendTimeout, d.Auth, d.Cookie, log)

	r.GET("/health", NewHealthHandler(d.Health...).Health)

	// Public: the session is loaded but never required.
	authGroup := r.Group("/auth")
	authGroup.Use(sessions)
	auth.NewHandler(d.Auth, d.Cookie, log).RegisterRoutes(authGroup)

	api := r.Group("/api")
	api.Use(sessions, guard.API(guard.APITable(), auth.CurrentSession))
	{
		notifications := api.Group("/notifications")
		notify.NewHandler(d.Hub, auth.CurrentSession, proxyHandler.SessionExpired, log).RegisterRoutes(notifications)

		files := api.Group("/files")
		NewFilesHandler(d.Files, d.LinkTTL, log).RegisterRoutes(files)

		// Routes like /api/documents/* -> {backend}/documents/*
		for _, name := range proxied {
			g := api.Group("/" + name)
			g.Any("/*path", proxyHandler.Proxy)
			g.Any("", proxyHandler.Proxy)
		}
	}

	noRoute := []gin.HandlerFunc{func(c *gin.Context) {
		if d.StaticDir == "" || c.Request.URL.Path == "/api" || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			notFound(c)
			c.Abort()
		}
	}}
	if d.StaticDir != "" {
		noRoute = append(noRoute, sessions, guard.Pages(guard.PageTable(), auth.CurrentSession), SPAHandler(d.StaticDir))
	}
	r.NoRoute(noRoute...)

	return r
}
