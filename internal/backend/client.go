// Package backend is the typed REST client for the Knowledge Sharing
// backend. It covers the endpoints the gateway itself acts on (auth and
// notifications); everything else is proxied untouched.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"knowshare/internal/logger"
)

const defaultTimeout = 15 * time.Second

// Resolver yields the backend base URL (scheme, host and /api path).
type Resolver interface {
	Resolve(ctx context.Context) (*url.URL, error)
}

// StaticResolver always returns the same base URL.
type StaticResolver struct {
	base *url.URL
}

// NewStaticResolver parses baseURL once.
func NewStaticResolver(baseURL string) (*StaticResolver, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("baseURL is empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("baseURL %q must be absolute", baseURL)
	}
	return &StaticResolver{base: u}, nil
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(context.Context) (*url.URL, error) {
	u := *r.base
	return &u, nil
}

// Client talks to the backend on behalf of a session token.
type Client struct {
	resolver   Resolver
	httpClient *http.Client
	logger     *slog.Logger
}

// Options allows overriding the client's dependencies.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a backend client.
func New(resolver Resolver, opts Options) (*Client, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Client{resolver: resolver, httpClient: client, logger: log}, nil
}

// JoinPath appends an API path (e.g. "/auth/login") to the base path.
func JoinPath(base *url.URL, path string, query url.Values) *url.URL {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return &u
}

func (c *Client) do(ctx context.Context, method, path, authToken string, body io.Reader) (*http.Response, error) {
	base, err := c.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	full := JoinPath(base, path, nil)

	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "latency_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, authToken string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, err
		}
		body = buf
	}
	return c.do(ctx, method, path, authToken, body)
}

// call performs a request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) call(ctx context.Context, op, method, path, authToken string, payload, out any) error {
	resp, err := c.doJSON(ctx, method, path, authToken, payload)
	if err != nil {
		return wrapError(op, KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return wrapError(op, KindServer, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
