package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"knowshare/internal/config"
)

func testConfig() config.S3Config {
	return config.S3Config{
		Endpoint:       "minio:9000",
		PublicEndpoint: "files.example.com",
		AccessKey:      "minioadmin",
		SecretKey:      "minioadmin",
		Bucket:         "documents",
		UseSSL:         false,
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Bucket = ""
	if _, err := New(ctx, cfg, nil); err == nil {
		t.Error("expected error without bucket")
	}

	cfg = testConfig()
	cfg.Endpoint = ""
	if _, err := New(ctx, cfg, nil); err == nil {
		t.Error("expected error without endpoint")
	}

	cfg = testConfig()
	cfg.SecretKey = ""
	if _, err := New(ctx, cfg, nil); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestPresignDownloadURL(t *testing.T) {
	svc, err := New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := svc.PresignDownloadURL(context.Background(), "/uploads/12/guide.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignDownloadURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "files.example.com" {
		t.Errorf("link should use the public endpoint, got host %q", u.Host)
	}
	if u.Path != "/documents/uploads/12/guide.pdf" {
		t.Errorf("expected path-style key, got %q", u.Path)
	}
	if u.Query().Get("X-Amz-Expires") != "900" {
		t.Errorf("expected 900s expiry, got %q", u.Query().Get("X-Amz-Expires"))
	}
	if !strings.Contains(u.RawQuery, "X-Amz-Signature=") {
		t.Error("link should be signed")
	}
}

func TestPresignDownloadURL_Invalid(t *testing.T) {
	svc, err := New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := svc.PresignDownloadURL(ctx, "", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: expected ErrInvalidKey, got %v", err)
	}
	if _, err := svc.PresignDownloadURL(ctx, "a/../../etc/passwd", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("traversal key: expected ErrInvalidKey, got %v", err)
	}
	_, err = svc.PresignDownloadURL(ctx, "a.pdf", 0)
	if err == nil {
		t.Error("expected error for zero ttl")
	}
	if errors.Is(err, ErrInvalidKey) {
		t.Error("a bad ttl is not a key problem")
	}
}

func TestEndpointURL(t *testing.T) {
	tests := map[string]string{
		"minio:9000":         "http://minio:9000",
		"https://s3.aws.com": "https://s3.aws.com",
	}
	for in, want := range tests {
		if got := endpointURL(in, false); got != want {
			t.Errorf("endpointURL(%q) = %q, want %q", in, got, want)
		}
	}
	if got := endpointURL("minio:9000", true); got != "https://minio:9000" {
		t.Errorf("ssl endpoint = %q", got)
	}
}
