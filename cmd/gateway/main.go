package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"knowshare/internal/auth"
	"knowshare/internal/backend"
	"knowshare/internal/config"
	"knowshare/internal/consul"
	"knowshare/internal/events"
	"knowshare/internal/gateway"
	"knowshare/internal/logger"
	"knowshare/internal/notify"
	"knowshare/internal/session"
	"knowshare/internal/storage"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	// Initialize structured logger
	log := logger.New()
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting gateway",
		"port", cfg.Port,
		"backend_url", cfg.Backend.URL,
		"backend_service", cfg.Backend.Service,
		"redis_addr", cfg.Redis.Addr,
		"notify_enabled", cfg.Notify.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Consul is optional: backend discovery and self-registration.
	var consulClient *consul.Client
	if cfg.Consul.Addr != "" {
		consulClient, err = consul.NewClient(cfg.Consul.Addr, cfg.Consul.Token)
		if err != nil {
			log.Error("Failed to create Consul client", "error", err)
			os.Exit(1)
		}
		log.Info("Connected to Consul", "addr", cfg.Consul.Addr)
	}

	resolver, err := newResolver(cfg, consulClient)
	if err != nil {
		log.Error("Failed to configure backend resolver", "error", err)
		os.Exit(1)
	}

	api, err := backend.New(resolver, backend.Options{
		HTTPClient: &http.Client{Timeout: cfg.Backend.Timeout},
		Logger:     log.With("component", "backend"),
	})
	if err != nil {
		log.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}

	// Initialize Redis session store
	store := session.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = session.Ping(pingCtx, store)
	cancel()
	if err != nil {
		log.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	log.Info("Connected to Redis")

	publisher := newPublisher(cfg, log)
	defer publisher.Close()

	hub := notify.NewHub(api, notify.HubConfig{
		Enabled:        cfg.Notify.Enabled,
		URL:            cfg.Notify.URL,
		ReconnectDelay: cfg.Notify.ReconnectDelay,
		Heartbeat:      cfg.Notify.Heartbeat,
	}, log.With("component", "notify"))

	authService := auth.NewService(api, session.NewManager(store), auth.Options{
		MaxAge:    cfg.Session.MaxAge,
		Notifier:  hub,
		Publisher: publisher,
		Logger:    log.With("component", "auth"),
	})
	hub.SetUnauthorizedHandler(authService.ForceLogout)
	go hub.RunSweeper(ctx, time.Minute)

	health := []gateway.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return session.Ping(ctx, store) }},
	}

	var files gateway.Presigner
	if cfg.S3.Enabled() {
		st, err := storage.New(ctx, cfg.S3, log.With("component", "storage"))
		if err != nil {
			log.Error("Failed to configure object storage", "error", err)
			os.Exit(1)
		}
		files = st
		health = append(health, gateway.HealthCheck{Name: "storage", Check: st.Health})
	}

	router := gateway.SetupRouter(gateway.Deps{
		Auth: authService,
		Cookie: auth.Cookie{
			Name:   cfg.Session.CookieName,
			MaxAge: cfg.Session.MaxAge,
			Secure: cfg.Production(),
		},
		Hub:            hub,
		Resolver:       resolver,
		BackendTimeout: cfg.Backend.Timeout,
		Files:          files,
		LinkTTL:        cfg.S3.LinkTTL,
		CORSOrigins:    cfg.CORS,
		StaticDir:      cfg.StaticDir,
		Health:         health,
		Logger:         log,
	})

	// WriteTimeout stays zero: the notification stream is long-lived.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if consulClient != nil {
		svc, err := consul.GatewayService(cfg.Host, cfg.Port)
		if err == nil {
			err = consulClient.Register(svc)
		}
		if err != nil {
			log.Warn("Failed to register gateway with Consul", "error", err)
		} else {
			log.Info("Registered with Consul", "service_id", svc.ID)
			defer func() {
				if err := consulClient.Deregister(svc.ID); err != nil {
					log.Warn("Failed to deregister gateway", "error", err)
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("Failed to start server", "error", err)
	}

	log.Info("Shutting down gateway")

	// Notification streams end once their inboxes close, letting Shutdown drain.
	hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Gateway stopped")
}

// newResolver resolves the backend through Consul when BACKEND_SERVICE is
// set, otherwise uses BACKEND_URL as is.
func newResolver(cfg *config.Config, consulClient *consul.Client) (backend.Resolver, error) {
	if cfg.Backend.Service == "" {
		return backend.NewStaticResolver(cfg.Backend.URL)
	}
	if consulClient == nil {
		return nil, errors.New("BACKEND_SERVICE requires CONSUL_HTTP_ADDR")
	}
	return consul.NewBackendResolver(consulClient, cfg.Backend.Service, cfg.Backend.URL)
}

// newPublisher returns a Kafka publisher when brokers are configured. A
// broken Kafka setup degrades to no events rather than failing startup.
func newPublisher(cfg *config.Config, log *slog.Logger) events.Publisher {
	if cfg.Kafka.Brokers == "" {
		return events.Nop{}
	}
	pub, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		EnableIdempotence: true,
		Acks:              "all",
	}, log.With("component", "events"))
	if err != nil {
		log.Warn("Session events disabled", "error", err)
		return events.Nop{}
	}
	return pub
}
