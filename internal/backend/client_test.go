package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	res, err := NewStaticResolver(srv.URL + "/api/")
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(res, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewStaticResolver(t *testing.T) {
	if _, err := NewStaticResolver(""); err == nil {
		t.Error("expected error for empty url")
	}
	if _, err := NewStaticResolver("/api"); err == nil {
		t.Error("expected error for relative url")
	}

	r, err := NewStaticResolver("http://backend:8090/api/")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := r.Resolve(context.Background())
	u.Host = "mutated"
	again, _ := r.Resolve(context.Background())
	if again.Host != "backend:8090" || again.Path != "/api" {
		t.Errorf("resolver must return copies, got %s", again)
	}
}

func TestJoinPath(t *testing.T) {
	base, _ := url.Parse("http://backend:8090/api")
	got := JoinPath(base, "/notifications/5/read", url.Values{"x": {"1"}})
	if got.String() != "http://backend:8090/api/notifications/5/read?x=1" {
		t.Errorf("unexpected url %s", got)
	}
	if base.Path != "/api" {
		t.Error("JoinPath must not mutate base")
	}
}

func TestLogin_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Username != "alice" || req.Password != "pw" {
			t.Errorf("unexpected credentials %+v", req)
		}
		json.NewEncoder(w).Encode(LoginResponse{Token: "jwt", Type: "Bearer", ID: 1, Username: "alice", Role: "EMPLOYEE"})
	})

	resp, err := c.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token != "jwt" || resp.ID != 1 || resp.Role != "EMPLOYEE" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":401,"message":"Invalid username or password"}`))
	})

	_, err := c.Login(context.Background(), "alice", "bad")
	var be *Error
	if !errors.As(err, &be) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if be.Kind != KindUnauthorized || be.Status != http.StatusUnauthorized {
		t.Errorf("unexpected error %+v", be)
	}
	if be.Message != "Invalid username or password" {
		t.Errorf("expected backend message, got %q", be.Message)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized should be true")
	}
}

func TestLogin_EmptyToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":"","id":1}`))
	})

	if _, err := c.Login(context.Background(), "a", "b"); KindOf(err) != KindServer {
		t.Errorf("expected server error for empty token, got %v", err)
	}
}

func TestRegister_ValidationMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Username already exists"}`))
	})

	_, err := c.Register(context.Background(), RegisterRequest{Username: "alice"})
	var be *Error
	if !errors.As(err, &be) || be.Kind != KindValidation || be.Message != "Username already exists" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestTransportError(t *testing.T) {
	res, _ := NewStaticResolver("http://127.0.0.1:1/api")
	c, _ := New(res, Options{})

	err := c.Logout(context.Background(), "tok")
	if KindOf(err) != KindTransport {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestNotifications_Endpoints(t *testing.T) {
	type call struct{ method, path, auth string }
	var calls []call

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Authorization")})
		switch r.URL.Path {
		case "/api/notifications":
			w.Write([]byte(`[{"id":1,"message":"m","isRead":false,"documentId":5,"documentTitle":"Doc","createdAt":"2026-01-01T00:00:00"}]`))
		case "/api/notifications/unread/count":
			w.Write([]byte(`{"count":4}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	list, err := c.ListNotifications(ctx, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].DocumentID == nil || *list[0].DocumentID != 5 {
		t.Errorf("unexpected list %+v", list)
	}

	n, err := c.UnreadCount(ctx, "tok")
	if err != nil || n != 4 {
		t.Errorf("UnreadCount = %d, %v", n, err)
	}

	if err := c.MarkRead(ctx, "tok", 9); err != nil {
		t.Error(err)
	}
	if err := c.MarkAllRead(ctx, "tok"); err != nil {
		t.Error(err)
	}
	if err := c.DeleteNotification(ctx, "tok", 9); err != nil {
		t.Error(err)
	}
	if err := c.ClearNotifications(ctx, "tok"); err != nil {
		t.Error(err)
	}

	want := []call{
		{http.MethodGet, "/api/notifications", "Bearer tok"},
		{http.MethodGet, "/api/notifications/unread/count", "Bearer tok"},
		{http.MethodPut, "/api/notifications/9/read", "Bearer tok"},
		{http.MethodPut, "/api/notifications/read-all", "Bearer tok"},
		{http.MethodDelete, "/api/notifications/9", "Bearer tok"},
		{http.MethodDelete, "/api/notifications/all", "Bearer tok"},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d: %+v", len(want), len(calls), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestListNotifications_NullBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	})

	list, err := c.ListNotifications(context.Background(), "tok")
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", list)
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		401: KindUnauthorized,
		400: KindValidation,
		403: KindValidation,
		404: KindValidation,
		409: KindValidation,
		422: KindValidation,
		500: KindServer,
		503: KindServer,
	}
	for status, want := range cases {
		if got := KindForStatus(status); got != want {
			t.Errorf("KindForStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
