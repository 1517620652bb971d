package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authcore/internal/cache"
	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrations"
	"authcore/internal/email"
	apihttp "authcore/internal/http"
	"authcore/internal/password"
	"authcore/internal/repository"
	"authcore/internal/service"
	"authcore/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.OTelServiceName)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	sharedCache, cachePinger, closeCache := newCache(ctx, cfg, logger)
	defer closeCache()

	userRepo := repository.NewPgUserRepository(pool)
	hasher := password.NewDefault()
	emailSender := newEmailSender(cfg, logger)
	policies := ratePolicies(cfg)

	limiter := service.NewRateLimiter(logger, sharedCache, cfg.DependencyTimeout)
	credentials := service.NewCredentialVerifier(logger, userRepo, hasher, cfg.DependencyTimeout)
	otpSvc := service.NewOTPService(logger, userRepo, emailSender, cfg.OTPTTL, cfg.DependencyTimeout,
		service.WithRequireDelivery(cfg.OTPRequireDelivery),
	)
	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		cfg.JWTAccessTTL,
		cfg.JWTRefreshTTL,
		service.NewCacheRefreshTokenStore(sharedCache),
		service.WithIssuer(cfg.JWTIssuer),
		service.WithStoreTimeout(cfg.DependencyTimeout),
	)
	sessions := service.NewSessionCache(logger, sharedCache, userRepo, cfg.SessionCacheTTL, cfg.DependencyTimeout)
	loginSvc := service.NewLoginService(logger, userRepo, credentials, otpSvc, jwtSvc, limiter, policies, sessions)
	userSvc := service.NewUserService(logger, userRepo, hasher, otpSvc, limiter, policies, cfg.DependencyTimeout)

	authHandler := apihttp.NewAuthHandler(logger, loginSvc, userSvc, jwtSvc, sessions, apihttp.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	})
	healthHandler := apihttp.NewHealthHandler(logger, apihttp.PingFunc(func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	}), cachePinger, cfg.DependencyTimeout)
	router := apihttp.NewRouter(logger, authHandler, healthHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

// newCache usa Redis si esta configurado. Sin Redis el estado vive en
// memoria y no se comparte entre instancias.
func newCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, apihttp.Pinger, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, using in-process cache")
		mem := cache.NewMemoryCache()
		return mem, mem, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		MaxRetries: -1,
	})
	policy := cache.BackoffPolicy{
		MaxAttempts: cfg.CacheRetryMaxAttempts,
		Delay:       cache.ExponentialDelay(cfg.CacheRetryBaseDelay, cfg.CacheRetryMaxDelay),
	}
	redisCache := cache.NewRedisCache(client, "authcore:", policy)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		// Se arranca igual: el limitador falla abierto y los tokens fallan cerrado.
		logger.Warn("redis ping failed", zap.Error(err))
	}
	return redisCache, redisCache, func() { _ = client.Close() }
}

func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err == nil {
			return sender
		}
		logger.Warn("smtp sender init failed", zap.Error(err))
	}
	if cfg.IsDevelopment() {
		return email.NewLogSender(logger)
	}
	return email.NewDisabledSender("email sender not configured")
}

func ratePolicies(cfg *config.Config) service.RatePolicies {
	return service.RatePolicies{
		service.ClassLogin:      {Window: cfg.LoginRateWindow, Max: cfg.LoginRateMax},
		service.ClassOTPVerify:  {Window: cfg.OTPRateWindow, Max: cfg.OTPRateMax},
		service.ClassOTPRequest: {Window: cfg.OTPRequestWindow, Max: cfg.OTPRequestMax},
		service.ClassRefresh:    {Window: cfg.RefreshRateWindow, Max: cfg.RefreshRateMax},
	}
}
