package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lumenclass/authcore/internal/auth"
	"github.com/lumenclass/authcore/internal/background"
	"github.com/lumenclass/authcore/internal/config"
	"github.com/lumenclass/authcore/internal/database"
	"github.com/lumenclass/authcore/internal/handlers"
	middlewareCustom "github.com/lumenclass/authcore/internal/middleware"
	"github.com/lumenclass/authcore/internal/ratelimit"
	"github.com/lumenclass/authcore/internal/redis"
	"github.com/lumenclass/authcore/internal/repositories"
	"github.com/lumenclass/authcore/internal/routes"
	"github.com/lumenclass/authcore/internal/services"
	pkghttp "github.com/lumenclass/authcore/pkg/http"
	pkglogger "github.com/lumenclass/authcore/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize redis
	kv, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer kv.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	challengeRepo := repositories.NewChallengeRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)

	// Token and TOTP managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	totpManager, err := auth.NewTOTPManager([]byte(cfg.Auth.TOTPEncryptionKey), cfg.TwoFactor.Issuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Sliding-window login limiter
	limiter := ratelimit.New(kv, ratelimit.Policy{
		Window:      cfg.RateLimit.Window,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout:     cfg.RateLimit.Lockout,
		FailOpen:    cfg.RateLimit.FailOpen,
	}, logger)

	// Timing delay for the failure path
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// AWS SES email delivery
	emailSender, err := services.NewAWSSESSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	notificationService := services.NewNotificationService(notificationRepo, userRepo, emailSender, logger)
	sessionService := services.NewSessionService(sessionRepo, tokenManager, cfg.Auth.RefreshTokenExpiry, cfg.Auth.RememberMeExpiry, logger, auditLogger)
	deviceService := services.NewDeviceService(deviceRepo, sessionRepo, notificationService, logger, auditLogger)
	riskService := services.NewRiskService(loginAttemptRepo, services.NewStaticIPReputation(cfg.Risk.BlockedIPs), logger, auditLogger)
	twoFactorService := services.NewTwoFactorService(challengeRepo, userRepo, emailSender, totpManager, kv, services.TwoFactorPolicy{
		CodeLength:   cfg.TwoFactor.CodeLength,
		CodeExpiry:   cfg.TwoFactor.CodeExpiry,
		MaxAttempts:  cfg.TwoFactor.MaxAttempts,
		ResendWindow: cfg.RateLimit.ResendWindow,
	}, logger, auditLogger, notificationService)
	authService := services.NewAuthService(
		userRepo,
		loginAttemptRepo,
		limiter,
		riskService,
		deviceService,
		twoFactorService,
		sessionService,
		notificationService,
		services.NewStaticLocator(nil),
		timingDelay,
		cfg.Auth.LoginAttemptRetention,
		cfg.RateLimit.Window,
		logger,
		auditLogger,
	)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "strict",
	}

	authHandler := handlers.NewAuthHandler(authService, sessionService, ipConfig, cookieConfig, cfg.Auth.RefreshTokenExpiry)
	sessionsHandler := handlers.NewSessionsHandler(sessionService, ipConfig)
	devicesHandler := handlers.NewDevicesHandler(deviceService, ipConfig)
	notificationsHandler := handlers.NewNotificationsHandler(notificationService)
	totpHandler := handlers.NewTOTPHandler(twoFactorService, ipConfig)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, sessionsHandler, devicesHandler, notificationsHandler, totpHandler, tokenManager, sessionRepo)

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
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup worker
	cleaner := background.NewCleaner(loginAttemptRepo, challengeRepo, sessionRepo, cfg.Auth.CleanupInterval, cfg.Auth.LoginAttemptRetention, logger)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleaner.Run(cleanupCtx)

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
