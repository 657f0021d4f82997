package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/medbook/medbook/internal/config"
	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/domain/scheduling"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/internal/platform/middleware"
	"github.com/medbook/medbook/internal/platform/outbox"
	"github.com/medbook/medbook/internal/platform/telemetry"
	"github.com/medbook/medbook/internal/platform/validation"
)

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "booking-server").Logger()
}

// handlers are the route owners mounted by newServer.
type handlers struct {
	identity   *identity.Handler
	scheduling *scheduling.Handler
	dbHealth   echo.HandlerFunc
}

func newServer(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics, limiter echo.MiddlewareFunc, h handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)
	e.Validator = validation.New()

	// Recovery sits inside Logger so recovered panics are logged as 500s.
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", echo.HeaderRetryAfter, "Link"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if h.dbHealth != nil {
		e.GET("/health/db", h.dbHealth)
	}
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api/v1")
	if limiter != nil {
		api.Use(limiter)
	}
	h.identity.RegisterRoutes(api)
	h.scheduling.RegisterRoutes(api)

	newDocs(e, fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)).RegisterRoutes(e.Group("/api"))
	return e
}

// newRateLimiter uses Redis when REDIS_URL is set so limits hold across
// instances, and the in-process token bucket otherwise. The returned func
// releases the Redis client.
func newRateLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, func() error, error) {
	if cfg.RedisURL == "" {
		return middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}), func() error { return nil }, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, rate limiter will fail open until it recovers")
	}

	limit, window := redisWindow(cfg.RateLimitRPS, cfg.RateLimitBurst)
	rl := middleware.NewRedisRateLimiter(rdb, limit, window, "")
	return rl.Middleware(logger, true), rdb.Close, nil
}

// redisWindow maps a token bucket onto a fixed window that admits a full
// burst and averages to rps.
func redisWindow(rps float64, burst int) (int, time.Duration) {
	if burst < 1 {
		burst = 1
	}
	if rps <= 0 {
		return burst, time.Second
	}
	window := time.Duration(float64(burst) / rps * float64(time.Second))
	if window < time.Second {
		window = time.Second
	}
	return burst, window.Round(time.Second)
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "booking-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSamplingRatio,
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewMetrics().WithPoolStats(func() (int32, int32) {
		s := pool.Stat()
		return s.AcquiredConns(), s.IdleConns()
	})

	tx := db.NewTxManager(pool)
	patients := identity.NewPatientRepo(pool)
	doctors := identity.NewDoctorRepo(pool)
	events := outbox.NewRepository(pool)

	opts := []scheduling.Option{
		scheduling.WithClock(time.Now, loc),
		scheduling.WithLogger(logger),
		scheduling.WithEvents(events),
		scheduling.WithMetrics(metrics),
	}
	slots := scheduling.NewAvailabilityRepoPG(pool)
	appts := scheduling.NewAppointmentRepoPG(pool)
	ledger := scheduling.NewLedger(slots, appts, doctors, tx, opts...)
	coord := scheduling.NewCoordinator(appts, ledger, patients, doctors, tx, opts...)

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLimiter() }()

	e := newServer(cfg, logger, metrics, limiter, handlers{
		identity:   identity.NewHandler(identity.NewService(patients, doctors)),
		scheduling: scheduling.NewHandler(ledger, coord),
		dbHealth:   db.HealthHandler(pool, 2*time.Second),
	})

	if len(cfg.KafkaBrokers) > 0 {
		pub := outbox.NewPublisher(events, tx, logger, outbox.PublisherConfig{
			Brokers:   strings.Join(cfg.KafkaBrokers, ","),
			PollEvery: cfg.OutboxPollInterval,
			BatchSize: cfg.OutboxBatchSize,
		})
		go pub.Run(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "booking-server"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("timezone", loc.String()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
