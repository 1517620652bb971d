package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"1"`

	JWTSecret     string        `env:"JWT_SECRET,required"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"authcore"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"1h"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	OTPTTL             time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPRequireDelivery bool          `env:"OTP_REQUIRE_DELIVERY" envDefault:"false"`

	LoginRateWindow   time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"15m"`
	LoginRateMax      int           `env:"RATE_LIMIT_LOGIN_MAX" envDefault:"10"`
	OTPRateWindow     time.Duration `env:"RATE_LIMIT_OTP_WINDOW" envDefault:"15m"`
	OTPRateMax        int           `env:"RATE_LIMIT_OTP_MAX" envDefault:"5"`
	OTPRequestWindow  time.Duration `env:"RATE_LIMIT_OTP_REQUEST_WINDOW" envDefault:"10m"`
	OTPRequestMax     int           `env:"RATE_LIMIT_OTP_REQUEST_MAX" envDefault:"3"`
	RefreshRateWindow time.Duration `env:"RATE_LIMIT_REFRESH_WINDOW" envDefault:"1m"`
	RefreshRateMax    int           `env:"RATE_LIMIT_REFRESH_MAX" envDefault:"30"`

	DependencyTimeout time.Duration `env:"DEPENDENCY_TIMEOUT" envDefault:"3s"`
	SessionCacheTTL   time.Duration `env:"SESSION_CACHE_TTL" envDefault:"1h"`

	RedisAddr             string        `env:"REDIS_ADDR"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisDB               int           `env:"REDIS_DB" envDefault:"0"`
	CacheRetryMaxAttempts int           `env:"CACHE_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	CacheRetryBaseDelay   time.Duration `env:"CACHE_RETRY_BASE_DELAY" envDefault:"50ms"`
	CacheRetryMaxDelay    time.Duration `env:"CACHE_RETRY_MAX_DELAY" envDefault:"500ms"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`

	OTelEndpoint    string `env:"OTEL_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"authcore"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza TTLs y umbrales no positivos.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"JWT_ACCESS_TTL", c.JWTAccessTTL},
		{"JWT_REFRESH_TTL", c.JWTRefreshTTL},
		{"OTP_TTL", c.OTPTTL},
		{"RATE_LIMIT_LOGIN_WINDOW", c.LoginRateWindow},
		{"RATE_LIMIT_OTP_WINDOW", c.OTPRateWindow},
		{"RATE_LIMIT_OTP_REQUEST_WINDOW", c.OTPRequestWindow},
		{"RATE_LIMIT_REFRESH_WINDOW", c.RefreshRateWindow},
		{"DEPENDENCY_TIMEOUT", c.DependencyTimeout},
		{"SESSION_CACHE_TTL", c.SessionCacheTTL},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	limits := []struct {
		name  string
		value int
	}{
		{"RATE_LIMIT_LOGIN_MAX", c.LoginRateMax},
		{"RATE_LIMIT_OTP_MAX", c.OTPRateMax},
		{"RATE_LIMIT_OTP_REQUEST_MAX", c.OTPRequestMax},
		{"RATE_LIMIT_REFRESH_MAX", c.RefreshRateMax},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", l.name, l.value)
		}
	}
	if c.JWTRefreshTTL < c.JWTAccessTTL {
		return errors.New("JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL")
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS out of range: %d/%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.CacheRetryMaxAttempts < 1 {
		return errors.New("CACHE_RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}
