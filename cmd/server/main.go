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

	"github.com/awnumar/memguard"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lms/docs" // swagger docs
	"lms/internal/auth"
	"lms/internal/cache"
	"lms/internal/config"
	"lms/internal/cryptox"
	"lms/internal/db"
	"lms/internal/handler"
	"lms/internal/keysource"
	"lms/internal/logging"
	"lms/internal/metrics"
	"lms/internal/repository"
	"lms/internal/router"
	"lms/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title LMS API
// @version 1.0
// @description Learning management API with JWT authentication, role based access control and an encrypted secret store.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	defer memguard.Purge()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.Production(), cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := keysource.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	masterKey, err := src.MasterKey(ctx)
	if err != nil {
		return err
	}
	cipher, err := cryptox.NewCipher(masterKey)
	if err != nil {
		return err
	}
	logger.Info("master key loaded", "source", src.Name())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx, gormDB); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	secretRepo := repository.NewSecretRepository(gormDB)

	secretService := service.NewSecretService(secretRepo, cipher, cfg.AppEnv, m)

	// Signing secrets come from the secret store; a missing one is fatal.
	tokens, err := auth.NewTokenServiceFromStore(ctx, secretService, auth.SecretNames{
		Access:  cfg.AccessSecretName,
		Refresh: cfg.RefreshSecretName,
	}, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("%w (run lmsctl secrets bootstrap --env %s)", err, cfg.AppEnv)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, login throttling and profile cache disabled", "error", err)
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, tokens, service.LoginThrottle{
		Store:       auth.NewAttemptStore(cacheClient, cfg.LoginAttemptWindow),
		MaxAttempts: cfg.MaxLoginAttempts,
	}, m)
	userService := service.NewUserService(userRepo, cacheClient)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = cfg.SwaggerHost
	}

	e := echo.New()
	router.Register(e, cfg, logger, tokens, reg, router.Handlers{
		Auth:    handler.NewAuthHandler(authService, int(tokens.RefreshTTL().Seconds()), cfg.Production()),
		User:    handler.NewUserHandler(userService),
		Secrets: handler.NewSecretHandler(secretService),
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.ServerPort
		logger.Info("server starting", "addr", addr, "env", cfg.AppEnv)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
