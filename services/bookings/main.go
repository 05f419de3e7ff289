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

	"github.com/diagnosis/autoescola/internal/roles"
	"github.com/diagnosis/autoescola/pkg/cache"
	"github.com/diagnosis/autoescola/pkg/config"
	"github.com/diagnosis/autoescola/pkg/database"
	"github.com/diagnosis/autoescola/pkg/events"
	"github.com/diagnosis/autoescola/pkg/logger"
	mw "github.com/diagnosis/autoescola/pkg/middleware"
	"github.com/diagnosis/autoescola/services/bookings/internal/handlers"
	"github.com/diagnosis/autoescola/services/bookings/internal/repository"
	"github.com/diagnosis/autoescola/services/bookings/internal/service"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Connect to Redis
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Connect to event bus
	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Initialize repositories
	draftRepo := repository.NewDraftRepository(rdb)
	catalogRepo := repository.NewCachedCatalog(repository.NewCatalogRepository(pool), cfg.Wizard.CatalogTTL)
	lessonRepo := repository.NewLessonRepository(pool)

	// Initialize services
	wizardService := service.NewWizardService(draftRepo, catalogRepo, lessonRepo, eventBus, cfg.Wizard.DraftTTL)

	// Initialize handlers
	h := handlers.New(wizardService)

	// Setup router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health(func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}))

	r.Mount("/", h.Routes(handlers.RouterConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		Roles:          roles.NewPostgresLookup(pool),
		Idempotency:    cache.NewIdempotencyStore(rdb),
		IdempotencyTTL: cfg.Wizard.IdempotencyTTL,
	}))

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down bookings service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Bookings service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting bookings service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Bookings service error", "error", err)
		os.Exit(1)
	}
}
