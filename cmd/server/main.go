package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/cinema-sessions/internal/catalog"
	"github.com/iliyamo/cinema-sessions/internal/config"
	"github.com/iliyamo/cinema-sessions/internal/database"
	"github.com/iliyamo/cinema-sessions/internal/handler"
	"github.com/iliyamo/cinema-sessions/internal/logger"
	"github.com/iliyamo/cinema-sessions/internal/metrics"
	"github.com/iliyamo/cinema-sessions/internal/middleware"
	"github.com/iliyamo/cinema-sessions/internal/queue"
	"github.com/iliyamo/cinema-sessions/internal/repository"
	"github.com/iliyamo/cinema-sessions/internal/router"
	"github.com/iliyamo/cinema-sessions/internal/service"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("database connection failed", "error", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("schema migration failed", "error", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	registry := service.NewSessionRegistry(repository.NewSessionRepo(db), m, cfg.SeatMaxAttempts, cfg.BaseTicketPriceCents)
	ledger := service.NewReservationLedger(repository.NewReservationRepo(db))
	movies := catalog.NewClient(catalog.Config{BaseURL: cfg.MoviesServiceURL, Timeout: cfg.CatalogTimeout})
	publisher := queue.NewPublisher(cfg.RabbitMQURL, queue.DefaultPublishBuffer)
	coord := service.NewCoordinator(registry, ledger, movies, publisher, m)

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(middleware.RequestLogger())

	router.RegisterRoutes(e, router.Deps{
		JWTSecret:    cfg.JWTSecret,
		Redis:        rdb,
		Cache:        config.LoadCacheConfig(),
		RateLimit:    config.LoadRateLimitConfig(),
		Health:       &handler.HealthHandler{DB: db},
		Sessions:     &handler.SessionHandler{Registry: registry, Scheduler: coord},
		Reservations: &handler.ReservationHandler{Booker: coord, Ledger: ledger},
		Movies:       &handler.MovieHandler{Catalog: movies},
	})

	// The publisher outlives the HTTP server so in-flight requests can still
	// enqueue events; it stops after Shutdown returns.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()
	waitWorkers := startWorkers(
		func() { publisher.Run(pubCtx) },
		func() {
			if err := queue.NewConsumer(cfg.RabbitMQURL, "").Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("reservation consumer stopped", "error", err)
			}
		},
	)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	stopPublisher()
	waitWorkers()
	log.Info("stopped")
}

// startWorkers runs each fn on its own goroutine and returns a function
// that blocks until all of them have returned.
func startWorkers(fns ...func()) (wait func()) {
	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		go func(fn func()) {
			defer wg.Done()
			fn()
		}(fn)
	}
	return wg.Wait
}
