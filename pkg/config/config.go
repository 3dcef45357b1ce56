package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Server   ServerConfig   `envPrefix:""`
	Database DatabaseConfig `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Keycloak KeycloakConfig `envPrefix:"KEYCLOAK_"`
	Auth     AuthConfig     `envPrefix:""`
	OAuth    OAuthConfig    `envPrefix:""`
	Notifx   NotifxConfig   `envPrefix:"NOTIFX_"`
	Jobx     JobxConfig     `envPrefix:"JOBX_"`
	MoMo     MoMoConfig     `envPrefix:"MOMO_"`
}

type ServerConfig struct {
	Port        string        `env:"PORT" envDefault:"5000"`
	CORSOrigins string        `env:"CORS_ORIGINS" envDefault:"*"`
	Version     string        `env:"APP_VERSION" envDefault:"1.0.0"`
	Debug       bool          `env:"DEBUG" envDefault:"false"`
	BodyLimit   int           `env:"BODY_LIMIT" envDefault:"1048576"`
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
}

type DatabaseConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"postgres"`
	Password        string        `env:"PASSWORD"`
	Name            string        `env:"NAME" envDefault:"keybridge"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// DSN is the lib/pq key=value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL is the postgres:// form used by the migrator.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KeycloakConfig struct {
	BaseURL       string        `env:"BASE_URL"`
	Realm         string        `env:"REALM"`
	ClientID      string        `env:"CLIENT_ID"`
	ClientSecret  string        `env:"CLIENT_SECRET"`
	AdminUsername string        `env:"ADMIN_USERNAME"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c *Config) Validate() error {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	check("KEYCLOAK_BASE_URL", c.Keycloak.BaseURL)
	check("KEYCLOAK_REALM", c.Keycloak.Realm)
	check("KEYCLOAK_CLIENT_ID", c.Keycloak.ClientID)
	check("KEYCLOAK_CLIENT_SECRET", c.Keycloak.ClientSecret)
	check("KEYCLOAK_ADMIN_USERNAME", c.Keycloak.AdminUsername)
	check("KEYCLOAK_ADMIN_PASSWORD", c.Keycloak.AdminPassword)
	check("JWT_SECRET", c.Auth.JWTSecret)

	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}

	switch c.Notifx.Provider {
	case "console", "ses", "smtp":
	default:
		return fmt.Errorf("unknown NOTIFX_PROVIDER %q (use console, ses or smtp)", c.Notifx.Provider)
	}
	return nil
}
