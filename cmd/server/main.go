package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ErlanBelekov/fallah-auth/config"
	"github.com/ErlanBelekov/fallah-auth/internal/email"
	"github.com/ErlanBelekov/fallah-auth/internal/health"
	"github.com/ErlanBelekov/fallah-auth/internal/infrastructure/memory"
	"github.com/ErlanBelekov/fallah-auth/internal/infrastructure/postgres"
	redisstore "github.com/ErlanBelekov/fallah-auth/internal/infrastructure/redis"
	ctxlog "github.com/ErlanBelekov/fallah-auth/internal/log"
	"github.com/ErlanBelekov/fallah-auth/internal/metrics"
	"github.com/ErlanBelekov/fallah-auth/internal/repository"
	"github.com/ErlanBelekov/fallah-auth/internal/security"
	"github.com/ErlanBelekov/fallah-auth/internal/sms"
	"github.com/ErlanBelekov/fallah-auth/internal/sweeper"
	"github.com/ErlanBelekov/fallah-auth/internal/token"
	httptransport "github.com/ErlanBelekov/fallah-auth/internal/transport/http"
	"github.com/ErlanBelekov/fallah-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/fallah-auth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/fallah-auth/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.OTPDevMode {
		logger.Warn("OTP dev mode enabled: codes are echoed in responses and SMS failures are ignored")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	probes := map[string]health.Pinger{"postgres": pool}

	// Verification store: redis when configured so codes survive restarts and
	// are shared across instances, otherwise process memory plus a sweeper.
	var codes repository.VerificationStore
	if cfg.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		codes = redisstore.NewVerificationStore(client)
		probes["redis"] = redisstore.Pinger{Client: client}
	} else {
		memStore := memory.NewVerificationStore()
		sw, err := sweeper.New(memStore, cfg.OTPSweepSchedule, logger)
		if err != nil {
			stop()
			log.Fatalf("sweeper: %v", err)
		}
		go sw.Start(ctx)
		codes = memStore
		logger.Info("using in-memory verification store")
	}

	// SMS
	var gateway sms.Gateway
	if cfg.TwilioConfigured() {
		gateway = sms.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	} else {
		logger.Warn("twilio credentials missing: verification codes will only be logged")
	}
	dispatcher := sms.NewDispatcher(gateway, logger, cfg.OTPDevMode)

	// Sessions
	issuer, err := token.NewIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		stop()
		log.Fatalf("token issuer: %v", err)
	}

	userRepo := postgres.NewUserRepository(pool)
	authUsecase := usecase.NewAuthUsecase(
		userRepo,
		codes,
		dispatcher,
		issuer,
		security.NewHasher(cfg.BcryptCost),
		email.NewSender(cfg.ResendAPIKey, cfg.ResendFrom, logger),
		logger,
		usecase.AuthConfig{
			CodeTTL:     cfg.OTPCodeTTL,
			MaxAttempts: cfg.OTPMaxAttempts,
			DevMode:     cfg.OTPDevMode,
		},
	)
	authHandler := handler.NewAuthHandler(authUsecase, logger, cfg.OTPDevMode)

	metrics.Register()
	checker := health.NewChecker(probes, logger, prometheus.DefaultRegisterer)

	extra := map[string]http.Handler{}
	if cfg.OTPDevMode {
		extra["/debug/verifications"] = handler.NewVerificationsHandler(codes, logger)
	}

	router, err := httptransport.NewRouter(logger, authHandler, issuer,
		middleware.NewRateLimiter(cfg.SendCodeRatePerMin), cfg.TrustedProxies)
	if err != nil {
		stop()
		log.Fatalf("router: %v", err)
	}

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker, extra)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
