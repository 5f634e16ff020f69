package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds everything the gateway needs at startup.
type Config struct {
	Port   string
	Host   string
	AppEnv string

	Backend   BackendConfig
	Notify    NotifyConfig
	Redis     RedisConfig
	Session   SessionConfig
	Consul    ConsulConfig
	Kafka     KafkaConfig
	S3        S3Config
	CORS      []string
	StaticDir string
}

// BackendConfig points at the Knowledge Sharing REST API.
type BackendConfig struct {
	URL     string
	Service string // Consul service name; overrides URL host when set
	Timeout time.Duration
}

// NotifyConfig controls the per-session notification socket.
type NotifyConfig struct {
	Enabled        bool
	URL            string
	ReconnectDelay time.Duration
	Heartbeat      time.Duration
}

// RedisConfig holds session store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig controls cookie/session lifetimes.
type SessionConfig struct {
	MaxAge     int // seconds
	CookieName string
}

// ConsulConfig enables backend discovery and gateway registration.
type ConsulConfig struct {
	Addr  string
	Token string
}

// KafkaConfig enables session activity events.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// S3Config enables presigned document file links.
type S3Config struct {
	Endpoint       string
	PublicEndpoint string // host used in presigned links; defaults to Endpoint
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	LinkTTL        time.Duration
}

// Enabled reports whether enough S3 settings are present to presign links.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Production reports whether cookies should be marked Secure.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// Load reads the configuration from the environment. All problems are
// reported together.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Port:      GetEnvOrDefault("GATEWAY_PORT", "8080"),
		Host:      GetEnvOrDefault("GATEWAY_HOST", "localhost"),
		AppEnv:    GetEnvOrDefault("APP_ENV", "development"),
		CORS:      GetEnvList("CORS_ORIGINS", []string{"http://localhost:4200"}),
		StaticDir: GetEnvOrDefault("STATIC_DIR", ""),
	}

	var err error

	cfg.Backend.URL = strings.TrimRight(GetEnvOrDefault("BACKEND_URL", "http://localhost:8090/api"), "/")
	cfg.Backend.Service = GetEnvOrDefault("BACKEND_SERVICE", "")
	cfg.Backend.Timeout, err = GetEnvDuration("BACKEND_TIMEOUT", 15*time.Second)
	collect(err)
	if _, perr := url.ParseRequestURI(cfg.Backend.URL); perr != nil {
		collect(fmt.Errorf("BACKEND_URL: %w", perr))
	}

	cfg.Notify.Enabled, err = GetEnvBool("NOTIFY_ENABLED", true)
	collect(err)
	cfg.Notify.ReconnectDelay, err = GetEnvDuration("NOTIFY_RECONNECT_DELAY", 5*time.Second)
	collect(err)
	cfg.Notify.Heartbeat, err = GetEnvDuration("NOTIFY_HEARTBEAT", 4*time.Second)
	collect(err)
	cfg.Notify.URL = GetEnvOrDefault("NOTIFY_WS_URL", "")
	if cfg.Notify.URL == "" {
		cfg.Notify.URL, err = DeriveSocketURL(cfg.Backend.URL)
		collect(err)
	}
	if cfg.Notify.ReconnectDelay <= 0 {
		collect(errors.New("NOTIFY_RECONNECT_DELAY must be positive"))
	}

	cfg.Redis.Addr = GetEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = GetEnvOrDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB, err = GetEnvInt("REDIS_DB", 0)
	collect(err)

	cfg.Session.CookieName = GetEnvOrDefault("SESSION_COOKIE", "session_id")
	cfg.Session.MaxAge, err = GetEnvInt("SESSION_MAX_AGE", 86400)
	collect(err)
	if cfg.Session.MaxAge <= 0 {
		collect(errors.New("SESSION_MAX_AGE must be positive"))
	}

	cfg.Consul.Addr = GetEnvOrDefault("CONSUL_HTTP_ADDR", "")
	cfg.Consul.Token = GetEnvOrDefault("CONSUL_HTTP_TOKEN", "")
	if cfg.Backend.Service != "" && cfg.Consul.Addr == "" {
		collect(errors.New("BACKEND_SERVICE requires CONSUL_HTTP_ADDR"))
	}

	cfg.Kafka.Brokers = GetEnvOrDefault("KAFKA_BROKERS", "")
	cfg.Kafka.Topic = GetEnvOrDefault("KAFKA_TOPIC_SESSION_EVENTS", "session-events")

	cfg.S3.Endpoint = GetEnvOrDefault("S3_ENDPOINT", "")
	cfg.S3.PublicEndpoint = GetEnvOrDefault("S3_PUBLIC_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = GetEnvOrDefault("S3_REGION", "us-east-1")
	cfg.S3.AccessKey = GetEnvOrDefault("S3_ACCESS_KEY", "")
	cfg.S3.SecretKey = GetEnvOrDefault("S3_SECRET_KEY", "")
	cfg.S3.Bucket = GetEnvOrDefault("S3_BUCKET_NAME", "")
	cfg.S3.UseSSL, err = GetEnvBool("S3_USE_SSL", true)
	collect(err)
	cfg.S3.LinkTTL, err = GetEnvDuration("S3_LINK_TTL", time.Hour)
	collect(err)
	if cfg.S3.Enabled() {
		collect(ValidateEnv([]string{"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY"}))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// DeriveSocketURL maps the REST base (http://host/api) to the raw WebSocket
// transport of the backend's SockJS endpoint (ws://host/api/ws/websocket).
func DeriveSocketURL(backendURL string) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", fmt.Errorf("derive socket url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("derive socket url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/websocket"
	u.RawQuery = ""
	return u.String(), nil
}
