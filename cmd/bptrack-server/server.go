package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/bptrack/bptrack/internal/config"
	"github.com/bptrack/bptrack/internal/domain/identity"
	"github.com/bptrack/bptrack/internal/domain/measurement"
	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/db"
	"github.com/bptrack/bptrack/internal/platform/docdb"
	"github.com/bptrack/bptrack/internal/platform/middleware"
	"github.com/bptrack/bptrack/internal/platform/notification"
	"github.com/bptrack/bptrack/internal/platform/oauth"
	"github.com/bptrack/bptrack/internal/platform/ratelimit"
)

const version = "0.1.0"

// serverDeps carries everything newServer needs. A nil limiter disables OTP
// attempt limiting and a nil oauth provider leaves out provider sign-in.
type serverDeps struct {
	cfg          *config.Config
	logger       zerolog.Logger
	users        identity.UserRepository
	measurements measurement.Repository
	sender       notification.EmailSender
	limiter      identity.AttemptLimiter
	oauth        identity.OAuthProvider
	dbHealth     echo.HandlerFunc
	bcryptCost   int
}

type stores struct {
	users        identity.UserRepository
	measurements measurement.Repository
	health       echo.HandlerFunc
	close        func()
}

// openStores connects the configured backend and returns its repositories.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			count, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info().Int("applied", count).Msg("migrations up to date")
		}
		return &stores{
			users:        identity.NewUserRepoPG(pool),
			measurements: measurement.NewRepoPG(pool),
			health:       db.HealthHandler(pool),
			close:        pool.Close,
		}, nil

	case config.BackendMongo:
		client, database, err := docdb.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := docdb.EnsureIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &stores{
			users:        identity.NewUserRepoMongo(database),
			measurements: measurement.NewRepoMongo(database),
			health:       docdb.HealthHandler(client),
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Warn().Err(err).Msg("mongo disconnect failed")
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// openAttemptLimiter returns a Redis-backed OTP limiter when REDIS_URL is
// set, and nil otherwise.
func openAttemptLimiter(ctx context.Context, cfg *config.Config) (identity.AttemptLimiter, func(), error) {
	if cfg.RedisURL == "" {
		return nil, func() {}, nil
	}
	client, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	window := ratelimit.NewRedisWindow(client, "otp-attempts", cfg.OTPMaxAttempts, identity.OTPLifetime)
	return window, func() { _ = client.Close() }, nil
}

// newOAuthProvider returns the Google provider when its client is configured.
func newOAuthProvider(cfg *config.Config) identity.OAuthProvider {
	if !cfg.GoogleOAuthEnabled() {
		return nil
	}
	return oauth.NewGoogleProvider(oauth.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
	})
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if !cfg.SendEmails {
		return notification.NewLogSender(logger)
	}
	return notification.NewSendGridSender(cfg.SendGridKey, cfg.SendFrom, cfg.SendGridURL)
}

// newServer builds the echo instance with every route and middleware wired.
func newServer(d serverDeps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}

	// Services
	cost := d.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	tokens := auth.NewTokenIssuer(cfg.SecretKey, cfg.JWTLifetime)
	notifier := notification.NewNotifier(d.sender, notification.NewTemplateEngine())

	opts := []identity.Option{identity.WithLogger(logger)}
	if cfg.TestFixedOTP != "" {
		opts = append(opts, identity.WithFixedOTP(cfg.TestFixedOTP))
	}
	if d.limiter != nil {
		opts = append(opts, identity.WithAttemptLimiter(d.limiter))
	}
	identitySvc := identity.NewService(d.users, auth.NewPasswordHasher(cost), tokens, notifier, opts...)

	measurementSvc := measurement.NewService(d.measurements)
	measurementSvc.SetLogger(logger)

	// Rate limiting on the public account routes
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}

	// Route groups
	authGroup := e.Group("/auth", middleware.RateLimit(rateLimitCfg))
	api := e.Group("", auth.JWTMiddleware(tokens, identitySvc), auth.RequireVerified())
	fhirGroup := api.Group("/fhir")

	identityHandler := identity.NewHandler(identitySvc, cfg.VerifySuccessRedirect)
	identityHandler.RegisterRoutes(authGroup, api, fhirGroup)
	if d.oauth != nil {
		identityHandler.RegisterOAuthRoutes(authGroup, d.oauth)
	}
	measurement.NewHandler(measurementSvc).RegisterRoutes(api, fhirGroup)

	return e
}
