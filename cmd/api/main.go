package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mpaterson/bulwark/internal/auth"
	"github.com/mpaterson/bulwark/internal/background"
	"github.com/mpaterson/bulwark/internal/config"
	"github.com/mpaterson/bulwark/internal/database"
	"github.com/mpaterson/bulwark/internal/handlers"
	middlewareCustom "github.com/mpaterson/bulwark/internal/middleware"
	"github.com/mpaterson/bulwark/internal/protection"
	"github.com/mpaterson/bulwark/internal/repositories"
	"github.com/mpaterson/bulwark/internal/routes"
	"github.com/mpaterson/bulwark/internal/services"
	pkgauth "github.com/mpaterson/bulwark/pkg/auth"
	pkghttp "github.com/mpaterson/bulwark/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("protections", cfg.Protection.ActiveSet.String()),
	)

	// Run migrations before opening the pool
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, cfg.Database.DSN()); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	attemptLogRepo := repositories.NewAttemptLogRepository(db)

	// Rotating NDJSON attempt trail
	attemptSink := &lumberjack.Logger{
		Filename:   cfg.Audit.FilePath,
		MaxSize:    cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAge:     cfg.Audit.MaxAgeDays,
		Compress:   true,
	}
	defer attemptSink.Close()

	auditService := services.NewAuditService(attemptLogRepo, attemptSink, logger)

	// Protection mechanisms
	limiter := protection.NewSlidingWindowLimiter(logger)
	lockoutGuard := protection.NewLockoutGuard(protection.LockoutConfig{
		MaxFailedAttempts: cfg.Protection.MaxFailedAttempts,
		LockoutDuration:   cfg.Protection.LockoutDuration,
	}, logger)
	challengeStore := protection.NewMemoryChallengeStore()
	challengeIssuer := protection.NewChallengeIssuer(challengeStore, protection.ChallengeConfig{
		FailureThreshold: cfg.Protection.ChallengeThreshold,
		CodeLength:       cfg.Protection.ChallengeCodeLength,
		TTL:              cfg.Protection.ChallengeTTL,
	}, logger)

	var secondFactor protection.SecondFactorVerifier
	if cfg.Protection.SecondFactorMode == "totp" {
		secondFactor = protection.NewTOTPVerifier(cfg.Protection.TOTPIssuer, logger)
	} else {
		secondFactor = protection.NewStaticCodeVerifier(logger)
	}

	// Lockout alerts
	var notifier services.LockoutNotifier = services.NoopLockoutNotifier{}
	if cfg.Email.LockoutAlertsEnabled {
		sesNotifier, err := services.NewAWSSESLockoutNotifier(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.AlertAddress,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Token manager and timing equalizer
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// The engine itself
	loginService := services.NewLoginService(services.LoginServiceDeps{
		Repo:            accountRepo,
		Verifier:        pkgauth.NewVerifier(cfg.Auth.Pepper),
		TokenManager:    tokenManager,
		Audit:           auditService,
		Notifier:        notifier,
		Timing:          timingDelay,
		ActiveSet:       cfg.Protection.ActiveSet,
		Limiter:         limiter,
		Lockout:         lockoutGuard,
		Challenge:       challengeIssuer,
		SecondFactor:    secondFactor,
		Logger:          logger,
		RateLimitMax:    cfg.Protection.RateLimitMaxPerWindow,
		RateLimitWindow: cfg.Protection.RateLimitWindow,
	})

	// Background cleanup
	cleanupManager := background.NewCleanupManager(
		auditService,
		challengeIssuer,
		limiter,
		cfg.Audit.Retention,
		logger,
		cfg.Protection.CleanupInterval,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(loginService, ipConfig)
	statsHandler := handlers.NewStatsHandler(auditService)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, statsHandler, middlewareCustom.RateLimitConfig{
		RequestsPerMinute: cfg.Server.AuthRequestsPerMinute,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
