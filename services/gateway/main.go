package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/diagnosis/autoescola/pkg/cache"
	"github.com/diagnosis/autoescola/pkg/config"
	"github.com/diagnosis/autoescola/pkg/logger"
	mw "github.com/diagnosis/autoescola/pkg/middleware"
	"github.com/diagnosis/autoescola/services/gateway/internal/handlers"
	"github.com/diagnosis/autoescola/services/gateway/internal/proxy"
	"github.com/diagnosis/autoescola/services/gateway/internal/ratelimit"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	trusted, err := ratelimit.ParseTrustedProxies(cfg.Gateway.TrustedProxies)
	if err != nil {
		logger.Error("Invalid GATEWAY_TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}

	authProxy := proxy.NewServiceProxy("auth", cfg.Auth.APIBaseURL, cfg.Gateway.ProxyTimeout)
	bookingsProxy := proxy.NewServiceProxy("bookings", cfg.Wizard.BookingsAPIURL, cfg.Gateway.ProxyTimeout)
	limiter := ratelimit.New(ratelimit.NewRedisCounter(rdb), ratelimit.Config{
		Requests:       cfg.Gateway.AuthRateLimit,
		Window:         cfg.Gateway.AuthRateWindow,
		TrustedProxies: trusted,
	})

	h := handlers.New(authProxy, bookingsProxy, limiter)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("gateway"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRFToken", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))

	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Gateway.ProxyTimeout + cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gateway service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Gateway shutdown error", "error", err)
		}
	}()

	logger.Info("Starting gateway service", "port", cfg.Server.Port,
		"auth", cfg.Auth.APIBaseURL, "bookings", cfg.Wizard.BookingsAPIURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Gateway server error", "error", err)
		os.Exit(1)
	}
}
