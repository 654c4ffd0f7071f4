// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelamos/auth-api/internal/account"
	"github.com/angelamos/auth-api/internal/admin"
	"github.com/angelamos/auth-api/internal/auth"
	"github.com/angelamos/auth-api/internal/code"
	"github.com/angelamos/auth-api/internal/config"
	"github.com/angelamos/auth-api/internal/core"
	"github.com/angelamos/auth-api/internal/health"
	"github.com/angelamos/auth-api/internal/middleware"
	"github.com/angelamos/auth-api/internal/notifier"
	"github.com/angelamos/auth-api/internal/server"
	"github.com/angelamos/auth-api/internal/token"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	if cfg.Database.Migrate {
		if err := core.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	tokenIssuer, err := token.NewIssuer(cfg.Tokens)
	if err != nil {
		return err
	}
	logger.Info("token issuer initialized",
		"algorithm", "HS256",
		"issuer", cfg.Tokens.Issuer,
	)

	ledger := token.NewRevocationLedger(redis.Client)

	accountRepo := account.NewRepository(db.DB)
	codeIssuer := code.NewIssuer(db.DB)
	mailer := notifier.NewLogMailer(
		logger,
		cfg.App.Environment == "production",
	)

	authSvc := auth.NewService(
		accountRepo,
		codeIssuer,
		tokenIssuer,
		ledger,
		mailer,
	)
	authHandler := auth.NewHandler(authSvc)

	healthHandler := health.NewHandler(db, redis)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	gate := middleware.NewGate(tokenIssuer, ledger, accountRepo)

	accessGate := gate.Middleware(middleware.GateConfig{
		Purpose:       token.PurposeAccess,
		RequireActive: true,
		ExchangePath:  "/v1/auth/authtoken",
	}, authHandler)

	verificationGate := gate.Middleware(middleware.GateConfig{
		Purpose: token.PurposeVerification,
	}, nil)

	resetGate := gate.Middleware(middleware.GateConfig{
		Purpose: token.PurposePasswordReset,
	}, nil)

	adminOnly := middleware.RequireRole(
		account.RoleAdmin,
		account.RoleSuperAdmin,
	)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, accessGate, verificationGate, resetGate)
		adminHandler.RegisterRoutes(r, accessGate, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
