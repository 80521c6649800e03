package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"codescribe-auth/api/handler"
	apiMiddleware "codescribe-auth/api/middleware"
	"codescribe-auth/api/routes"
	"codescribe-auth/config"
	"codescribe-auth/internal/repository"
	"codescribe-auth/internal/service"
	"codescribe-auth/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	db := config.ConnectionDb()
	validate := validator.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	accessSecret := []byte(os.Getenv("JWT_SECRET"))
	issuer := os.Getenv("JWT_ISSUER")
	if len(accessSecret) == 0 {
		logger.Fatal("JWT_SECRET is required")
	}

	accessManager := utils.JWTManager{
		Secret:         accessSecret,
		Issuer:         issuer,
		AccessTokenTTL: 15 * time.Minute,
	}
	accessIssuer := service.JWTAccessIssuer{Manager: &accessManager}

	mfaSecret := os.Getenv("MFA_JWT_SECRET")
	if mfaSecret == "" {
		mfaSecret = os.Getenv("JWT_SECRET")
	}
	mfaIssuer := service.MFATokenIssuerJWT{
		Secret: []byte(mfaSecret),
		Issuer: issuer,
		TTL:    5 * time.Minute,
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tokenRepo := repository.NewAccountTokenRepository(db)
	mfaRepo := repository.NewMFASecretRepository(db)
	securityRepo := repository.NewSecurityLogRepository(db)
	unitOfWork := repository.NewUnitOfWork(db)

	clock := service.RealClock{}
	tokenService := service.NewTokenService(tokenRepo, unitOfWork, clock, service.TokenConfig{
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	})

	resetLimiter := buildResetLimiter(logger, clock)

	emailSender := service.NewResendEmailSender(
		os.Getenv("RESEND_API_KEY"),
		os.Getenv("EMAIL_FROM"),
		os.Getenv("APP_BASE_URL"),
	)

	authService := service.NewAuthService(
		userRepo,
		sessionRepo,
		mfaRepo,
		securityRepo,
		tokenService,
		resetLimiter,
		emailSender,
		service.BcryptPasswordHasher{},
		accessIssuer,
		mfaIssuer,
		service.NewTOTPProvider(issuer),
		clock,
		logger,
		service.AuthConfig{
			AccessTokenTTL:       15 * time.Minute,
			RefreshTokenTTL:      30 * 24 * time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			ResetTokenTTL:        time.Hour,
			MFATokenTTL:          5 * time.Minute,
			MFAIssuer:            issuer,
		},
	)

	authHandler := handler.NewAuthHandler(authService, validate)
	authHandler.CookieDomain = os.Getenv("COOKIE_DOMAIN")
	authHandler.SecureCookies = os.Getenv("COOKIE_SECURE") != "false"

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	authMiddleware := apiMiddleware.AuthMiddleware{JWT: &accessManager}
	router := routes.NewRouter(app, authHandler, authMiddleware)
	router.RegisterRoutes()

	go runCleanup(logger, tokenService, sessionRepo)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithField("addr", addr).Info("server started")
	if err := app.StartServer(server); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

// buildResetLimiter prefers the shared Redis counter so the per-identity
// reset limit holds across instances; without REDIS_URL a single-process
// limiter is used.
func buildResetLimiter(logger *logrus.Logger, clock service.Clock) service.ResetLimiter {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, reset rate limiting is per-process only")
		return service.NewMemoryResetLimiter(0, 0, clock)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.WithError(err).Fatal("invalid REDIS_URL")
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("redis ping failed")
	}
	return service.NewRedisResetLimiter(client)
}

func runCleanup(logger *logrus.Logger, tokens *service.TokenService, sessions repository.SessionRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := tokens.CleanupExpired(ctx); err != nil {
			logger.WithError(err).Error("token cleanup failed")
		}
		if err := sessions.CleanupExpired(ctx); err != nil {
			logger.WithError(err).Error("session cleanup failed")
		}
		cancel()
	}
}
