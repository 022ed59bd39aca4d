package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

type Config struct {
	Port                  string        `mapstructure:"PORT"`
	Env                   string        `mapstructure:"ENV"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	StoreBackend          string        `mapstructure:"STORE_BACKEND"`
	DatabaseURL           string        `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32         `mapstructure:"DB_MIN_CONNS"`
	AutoMigrate           bool          `mapstructure:"AUTO_MIGRATE"`
	MongoURL              string        `mapstructure:"MONGODB_URL"`
	MongoDatabase         string        `mapstructure:"MONGODB_DATABASE"`
	RedisURL              string        `mapstructure:"REDIS_URL"`
	OTPMaxAttempts        int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	SecretKey             string        `mapstructure:"SECRET_KEY"`
	JWTLifetime           time.Duration `mapstructure:"JWT_LIFETIME"`
	CORSOrigins           []string      `mapstructure:"CORS_ORIGINS"`
	SendEmails            bool          `mapstructure:"SEND_EMAILS"`
	SendGridKey           string        `mapstructure:"SENDGRID_KEY"`
	SendGridURL           string        `mapstructure:"SENDGRID_URL"`
	SendFrom              string        `mapstructure:"SEND_FROM"`
	TestFixedOTP          string        `mapstructure:"TEST_FIXED_OTP"`
	VerifySuccessRedirect string        `mapstructure:"VERIFY_SUCCESS_REDIRECT"`
	GoogleClientID        string        `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string        `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI     string        `mapstructure:"GOOGLE_REDIRECT_URI"`
	RateLimitRPS          float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int           `mapstructure:"RATE_LIMIT_BURST"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE_BACKEND",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "AUTO_MIGRATE",
	"MONGODB_URL", "MONGODB_DATABASE",
	"REDIS_URL", "OTP_MAX_ATTEMPTS",
	"SECRET_KEY", "JWT_LIFETIME", "CORS_ORIGINS",
	"SEND_EMAILS", "SENDGRID_KEY", "SENDGRID_URL", "SEND_FROM",
	"TEST_FIXED_OTP", "VERIFY_SUCCESS_REDIRECT",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_REDIRECT_URI",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("MONGODB_DATABASE", "dev")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("JWT_LIFETIME", "1h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:5174")
	v.SetDefault("SEND_EMAILS", true)
	v.SetDefault("SENDGRID_URL", "https://api.sendgrid.com/v3/mail/send")
	v.SetDefault("VERIFY_SUCCESS_REDIRECT", "http://localhost:5173/login?verified=1")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Bind explicitly so Unmarshal sees keys that only exist in the environment.
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Env vars arrive as a single comma separated string.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// GoogleOAuthEnabled reports whether Google sign-in is configured.
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != ""
}

// Validate checks that the configuration is safe to run.
//
// The fixed OTP override short-circuits email verification entirely, so it is
// refused outright in production.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGODB_URL is required when STORE_BACKEND is %q", BackendMongo)
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMongo, c.StoreBackend)
	}

	if len(c.SecretKey) < 16 {
		return fmt.Errorf("SECRET_KEY must be set and at least 16 bytes long")
	}
	if c.JWTLifetime <= 0 {
		return fmt.Errorf("JWT_LIFETIME must be positive, got %s", c.JWTLifetime)
	}

	if c.SendEmails {
		if c.SendGridKey == "" {
			return fmt.Errorf("SENDGRID_KEY is required when SEND_EMAILS is true")
		}
		if c.SendFrom == "" {
			return fmt.Errorf("SEND_FROM is required when SEND_EMAILS is true")
		}
	}

	if c.TestFixedOTP != "" {
		if c.IsProduction() {
			return fmt.Errorf("TEST_FIXED_OTP must not be set when ENV is production")
		}
		if len(c.TestFixedOTP) != 4 || strings.Trim(c.TestFixedOTP, "0123456789") != "" {
			return fmt.Errorf("TEST_FIXED_OTP must be exactly 4 digits")
		}
	}

	if c.GoogleOAuthEnabled() && (c.GoogleClientSecret == "" || c.GoogleRedirectURI == "") {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI are required when GOOGLE_CLIENT_ID is set")
	}

	if c.OTPMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive, got %d", c.OTPMaxAttempts)
	}

	return nil
}
