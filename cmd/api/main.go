package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/outpost-labs/warden/internal/config"
	delivery "github.com/outpost-labs/warden/internal/delivery/http"
	"github.com/outpost-labs/warden/internal/domain"
	"github.com/outpost-labs/warden/internal/lockout"
	"github.com/outpost-labs/warden/internal/mailer"
	"github.com/outpost-labs/warden/internal/ratelimit"
	"github.com/outpost-labs/warden/internal/repository"
	"github.com/outpost-labs/warden/internal/usecase"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatal("postgres unreachable", zap.Error(err))
	}
	cancelPing()

	// Redis backs the rate limiter when configured. A single node falls back
	// to per-process token buckets.
	var limiter domain.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute)
		logger.Info("rate limiting via redis", zap.String("addr", cfg.RedisAddr))
	} else {
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimitPerMinute)
		logger.Info("rate limiting in process")
	}

	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	policy := lockout.Policy{
		Threshold:    cfg.LockoutThreshold,
		LockDuration: cfg.LockoutDuration,
	}

	tokens := usecase.NewTokenService(usecase.TokenConfig{
		Issuer:        cfg.Issuer,
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	}, userRepo, tokenRepo, logger)

	mfaUsecase := usecase.NewMFAUsecase(userRepo, auditRepo, cfg.Issuer, cfg.BackupCodeSize, logger)

	authUsecase := usecase.NewAuthUsecase(usecase.AuthConfig{
		BcryptCost:  cfg.BcryptCost,
		MFATokenTTL: cfg.MFATokenTTL,
		Issuer:      cfg.Issuer,
		MFASecret:   cfg.AccessTokenSecret,
	}, userRepo, tokens, mfaUsecase, auditRepo, limiter, policy, logger)

	passwordUsecase := usecase.NewPasswordUsecase(userRepo, tokens, auditRepo,
		mailer.NewLogMailer(logger), limiter, policy, cfg.BcryptCost, cfg.ResetTokenTTL, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	public := e.Group("/v1/auth", delivery.RateLimitMiddleware(limiter, "http"))
	authed := e.Group("/v1/auth", delivery.JWTMiddleware(tokens))
	admin := e.Group("/v1/admin", delivery.JWTMiddleware(tokens),
		delivery.RequireRole(domain.RoleAdmin, logger))

	delivery.NewAuthHandler(public, authed, authUsecase)
	delivery.NewMFAHandler(authed, mfaUsecase)
	delivery.NewPasswordHandler(public, authed, passwordUsecase)
	delivery.NewAdminHandler(admin, authUsecase)

	e.GET("/healthz", func(c echo.Context) error {
		if err := db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeAuditLoop(rootCtx, auditRepo, cfg.AuditRetention, logger)

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func buildLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// purgeAuditLoop trims the audit trail past the retention horizon once a day.
func purgeAuditLoop(ctx context.Context, audit domain.AuditLog, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, time.Minute)
			deleted, err := audit.Purge(purgeCtx, time.Now().Add(-retention))
			cancel()
			if err != nil {
				logger.Error("audit purge failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				logger.Info("audit purge", zap.Int64("deleted", deleted))
			}
		}
	}
}
