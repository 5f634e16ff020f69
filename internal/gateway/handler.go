package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"time"

	"knowshare/internal/auth"
	"knowshare/internal/backend"
	"knowshare/internal/logger"

	"github.com/gin-gonic/gin"
)

var expiredBody = []byte(`{"error":"session expired","redirect":"/auth/login"}`)

// ProxyHandler forwards /api calls to the backend REST API with the
// session's bearer token.
type ProxyHandler struct {
	resolver  backend.Resolver
	transport http.RoundTripper
	auth      auth.Service
	cookie    auth.Cookie
	logger    *slog.Logger
}

// NewProxyHandler creates a new proxy handler. A nil transport uses a clone
// of http.DefaultTransport bounded by timeout.
func NewProxyHandler(resolver backend.Resolver, transport http.RoundTripper, timeout time.Duration, svc auth.Service, cookie auth.Cookie, log *slog.Logger) *ProxyHandler {
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = timeout
		transport = t
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ProxyHandler{resolver: resolver, transport: transport, auth: svc, cookie: cookie, logger: log}
}

// Proxy forwards the request, stripping the gateway's /api prefix in favour
// of the backend base path. Cookies never leave the gateway.
func (h *ProxyHandler) Proxy(c *gin.Context) {
	sess := auth.CurrentSession(c)
	if sess == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "redirect": "/auth/login"})
		return
	}

	base, err := h.resolver.Resolve(c.Request.Context())
	if err != nil {
		h.logger.Error("backend unavailable", "error", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
		return
	}
	c.Set("upstream", base.Host)

	proxy := &httputil.ReverseProxy{
		Transport: h.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api")
			pr.Out.URL.RawPath = ""
			pr.SetURL(base)
			pr.SetXForwarded()

			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Set("Authorization", "Bearer "+sess.Token)
			if id := c.GetString("request_id"); id != "" {
				pr.Out.Header.Set(RequestIDHeader, id)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode != http.StatusUnauthorized {
				return nil
			}
			h.auth.ForceLogout(c.Request.Context(), sess.ID, "backend returned 401 for "+c.Request.URL.Path)
			h.cookie.Clear(c)
			replaceBody(resp, expiredBody)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(r.Context().Err(), context.Canceled) {
				h.logger.Debug("client went away", "path", r.URL.Path)
				return
			}
			h.logger.Error("proxy error", "path", c.Request.URL.Path, "upstream", base.Host, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"bad gateway"}`))
		},
	}

	proxy.ServeHTTP(c.Writer, c.Request)
}

// SessionExpired answers a request whose token the backend rejected: the
// session is force-logged-out once and the cookie cleared.
func (h *ProxyHandler) SessionExpired(c *gin.Context) {
	if sess := auth.CurrentSession(c); sess != nil {
		h.auth.ForceLogout(c.Request.Context(), sess.ID, "backend returned 401 for "+c.Request.URL.Path)
	}
	h.cookie.Clear(c)
	c.Abort()
	c.Data(http.StatusUnauthorized, "application/json; charset=utf-8", expiredBody)
}

func replaceBody(resp *http.Response, body []byte) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("WWW-Authenticate")
	resp.Header.Set("Content-Type", "application/json")
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves the gateway health check.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a health handler over checks.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health is the gateway health check handler
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[hc.Name] = "ok"
	}

	body := gin.H{"status": "healthy", "service": "ksp-gateway"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	c.JSON(status, body)
}
