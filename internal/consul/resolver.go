package consul

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// BackendResolver picks a healthy backend instance per call and builds its
// API base URL. It satisfies backend.Resolver.
type BackendResolver struct {
	discovery ServiceDiscovery
	service   string
	scheme    string
	basePath  string
}

// NewBackendResolver resolves service through discovery. template supplies
// the scheme and base path (e.g. http://localhost:8090/api); its host is
// replaced by the discovered instance.
func NewBackendResolver(discovery ServiceDiscovery, service, template string) (*BackendResolver, error) {
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	u, err := url.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return &BackendResolver{
		discovery: discovery,
		service:   service,
		scheme:    scheme,
		basePath:  strings.TrimRight(u.Path, "/"),
	}, nil
}

// Resolve implements backend.Resolver.
func (r *BackendResolver) Resolve(ctx context.Context) (*url.URL, error) {
	inst, err := r.discovery.DiscoverOne(ctx, r.service)
	if err != nil {
		return nil, err
	}
	return &url.URL{
		Scheme: r.scheme,
		Host:   net.JoinHostPort(inst.Address, strconv.Itoa(inst.Port)),
		Path:   r.basePath,
	}, nil
}
