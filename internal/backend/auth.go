package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Login calls POST /auth/login.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	const op = "Login"
	var out LoginResponse
	if err := c.call(ctx, op, http.MethodPost, "/auth/login", "", LoginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, &Error{Op: op, Kind: KindServer, Status: http.StatusOK, Err: errors.New("empty auth token")}
	}
	return &out, nil
}

// Register calls POST /auth/register.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	const op = "Register"
	var out LoginResponse
	if err := c.call(ctx, op, http.MethodPost, "/auth/register", "", req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, &Error{Op: op, Kind: KindServer, Status: http.StatusOK, Err: errors.New("empty auth token")}
	}
	return &out, nil
}

// Logout calls POST /auth/logout with the session token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, "Logout", http.MethodPost, "/auth/logout", token, struct{}{}, nil)
}

// Me calls GET /auth/me.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.call(ctx, "Me", http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
