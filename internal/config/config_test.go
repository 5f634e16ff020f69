package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Backend.URL != "http://localhost:8090/api" {
		t.Errorf("unexpected backend url %s", cfg.Backend.URL)
	}
	if cfg.Notify.URL != "ws://localhost:8090/api/ws/websocket" {
		t.Errorf("unexpected socket url %s", cfg.Notify.URL)
	}
	if cfg.Notify.ReconnectDelay != 5*time.Second {
		t.Errorf("expected fixed 5s reconnect delay, got %v", cfg.Notify.ReconnectDelay)
	}
	if cfg.Session.MaxAge != 86400 {
		t.Errorf("expected default max age, got %d", cfg.Session.MaxAge)
	}
	if cfg.Production() {
		t.Error("default env should not be production")
	}
	if cfg.S3.Enabled() {
		t.Error("S3 should be disabled without a bucket")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://ksp.example.com/api/")
	t.Setenv("NOTIFY_RECONNECT_DELAY", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("APP_ENV", "production")
	t.Setenv("S3_BUCKET_NAME", "docs")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Backend.URL != "https://ksp.example.com/api" {
		t.Errorf("trailing slash not trimmed: %s", cfg.Backend.URL)
	}
	if cfg.Notify.URL != "wss://ksp.example.com/api/ws/websocket" {
		t.Errorf("unexpected socket url %s", cfg.Notify.URL)
	}
	if cfg.Notify.ReconnectDelay != 2*time.Second {
		t.Errorf("unexpected reconnect delay %v", cfg.Notify.ReconnectDelay)
	}
	if len(cfg.CORS) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORS)
	}
	if !cfg.Production() {
		t.Error("expected production")
	}
	if !cfg.S3.Enabled() {
		t.Error("expected S3 enabled")
	}
	if cfg.S3.PublicEndpoint != "minio:9000" {
		t.Errorf("public endpoint should default to the endpoint, got %q", cfg.S3.PublicEndpoint)
	}
}

func TestLoad_IncompleteS3(t *testing.T) {
	t.Setenv("S3_BUCKET_NAME", "docs")
	t.Setenv("S3_ENDPOINT", "minio:9000")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "S3_ACCESS_KEY, S3_SECRET_KEY") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ReportsAllProblems(t *testing.T) {
	t.Setenv("SESSION_MAX_AGE", "forever")
	t.Setenv("NOTIFY_RECONNECT_DELAY", "soon")
	t.Setenv("BACKEND_SERVICE", "knowledge-backend")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}

	msg := err.Error()
	for _, want := range []string{"SESSION_MAX_AGE", "NOTIFY_RECONNECT_DELAY", "CONSUL_HTTP_ADDR"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateEnv(t *testing.T) {
	t.Setenv("KSP_PRESENT", "yes")

	if err := ValidateEnv([]string{"KSP_PRESENT"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := ValidateEnv([]string{"KSP_PRESENT", "KSP_MISSING_ONE", "KSP_MISSING_TWO"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "KSP_MISSING_ONE, KSP_MISSING_TWO") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeriveSocketURL(t *testing.T) {
	if _, err := DeriveSocketURL("ftp://host/api"); err == nil {
		t.Error("expected error for unsupported scheme")
	}

	got, err := DeriveSocketURL("http://localhost:8090/api?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ws://localhost:8090/api/ws/websocket" {
		t.Errorf("unexpected url %s", got)
	}
}
