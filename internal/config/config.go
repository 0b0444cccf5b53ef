package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pkgconfig "github.com/Skotchmaster/compliance_api/pkg/config"
	"github.com/Skotchmaster/compliance_api/pkg/tokens"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	JWTSecret       string        `env:"JWT_SECRET,required"`
	RefreshSecret   string        `env:"REFRESH_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"compliance-api"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"10"`
	CookieSecure    bool          `env:"COOKIE_SECURE" envDefault:"true"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:8000/auth/google/callback"`
	FrontendURL        string        `env:"FRONTEND_URL" envDefault:"http://localhost:8080"`
	OAuthStateTTL      time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080,http://localhost:3000"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"user_events"`

	ESURL      string `env:"ES_URL"`
	ESUser     string `env:"ES_USER"`
	ESPassword string `env:"ES_PASSWORD"`
	ESIndex    string `env:"ES_INDEX" envDefault:"auth_audit"`

	SessionPruneInterval time.Duration `env:"SESSION_PRUNE_INTERVAL" envDefault:"1h"`
}

// Load reads .env (when present) and the process environment.
func Load(files ...string) (*Config, error) {
	var cfg Config
	loaded, err := pkgconfig.Load(&cfg, files...)
	if err != nil {
		return nil, err
	}
	if !loaded {
		slog.Info("notice: .env file not found, using system environment variables")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be blank"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL))
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if c.SessionPruneInterval <= 0 {
		errs = append(errs, errors.New("SESSION_PRUNE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// RefreshKey falls back to the access secret when REFRESH_SECRET is unset.
func (c *Config) RefreshKey() []byte {
	if c.RefreshSecret != "" {
		return []byte(c.RefreshSecret)
	}
	return []byte(c.JWTSecret)
}

func (c *Config) TokenIssuer() *tokens.Issuer {
	return &tokens.Issuer{
		AccessSecret:  []byte(c.JWTSecret),
		RefreshSecret: c.RefreshKey(),
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        c.JWTIssuer,
	}
}
