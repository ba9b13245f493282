// Package config loads application configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	Cookie   CookieConfig   `koanf:"cookie"`
	CORS     CORSConfig     `koanf:"cors"`
	Admin    AdminConfig    `koanf:"admin"`
	Mail     MailConfig     `koanf:"mail"`
	Digest   DigestConfig   `koanf:"digest"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains session token settings.
type JWTConfig struct {
	SecretKey            string        `koanf:"secret_key"`
	AccessTokenDuration  time.Duration `koanf:"access_token_duration"`
	RefreshTokenDuration time.Duration `koanf:"refresh_token_duration"`
}

// CookieConfig contains auth cookie settings.
type CookieConfig struct {
	Secure bool   `koanf:"secure"`
	Domain string `koanf:"domain"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AdminConfig describes the bootstrap administrator account created at
// startup if it does not exist yet.
type AdminConfig struct {
	Email       string `koanf:"email"`
	Password    string `koanf:"password"`
	DisplayName string `koanf:"display_name"`
}

// MailConfig contains SMTP sender settings.
type MailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// DigestConfig contains digest batch and scheduler settings.
type DigestConfig struct {
	FeedBaseURL        string          `koanf:"feed_base_url"`
	Lookback           time.Duration   `koanf:"lookback"`
	RequestTimeout     time.Duration   `koanf:"request_timeout"`
	ChannelConcurrency int             `koanf:"channel_concurrency"`
	EmailConcurrency   int             `koanf:"email_concurrency"`
	ResolverRateLimit  float64         `koanf:"resolver_rate_limit"`
	Scheduler          SchedulerConfig `koanf:"scheduler"`
}

// SchedulerConfig controls the half-hour digest cron.
type SchedulerConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Location string `koanf:"location"`
}

// envPrefix is stripped from environment variables; TUBEDIGEST_SERVER_PORT
// overrides server.port.
const envPrefix = "TUBEDIGEST_"

// Load reads configuration from an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a config populated with defaults for everything that has
// a sensible one. Secrets and the database URL must come from file or env.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 30 * 24 * time.Hour,
		},
		Admin: AdminConfig{
			DisplayName: "Administrator",
		},
		Mail: MailConfig{
			SMTPPort: 587,
		},
		Digest: DigestConfig{
			FeedBaseURL:        "https://www.youtube.com/feeds/videos.xml",
			Lookback:           24 * time.Hour,
			RequestTimeout:     30 * time.Second,
			ChannelConcurrency: 4,
			EmailConcurrency:   8,
			ResolverRateLimit:  2.0,
			Scheduler: SchedulerConfig{
				Enabled:  true,
				Location: "UTC",
			},
		},
	}
}

// applyFallbacks restores defaults for fields an explicit config may have
// zeroed out.
func (c *Config) applyFallbacks() {
	def := Default()
	if c.Digest.ChannelConcurrency <= 0 {
		c.Digest.ChannelConcurrency = def.Digest.ChannelConcurrency
	}
	if c.Digest.EmailConcurrency <= 0 {
		c.Digest.EmailConcurrency = def.Digest.EmailConcurrency
	}
	if c.Digest.RequestTimeout <= 0 {
		c.Digest.RequestTimeout = def.Digest.RequestTimeout
	}
	if c.Digest.Lookback <= 0 {
		c.Digest.Lookback = def.Digest.Lookback
	}
	if c.Database.ConnectAttempts <= 0 {
		c.Database.ConnectAttempts = def.Database.ConnectAttempts
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.JWT.SecretKey == "" {
		return errors.New("config: jwt.secret_key is required")
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return errors.New("config: admin.password is required when admin.email is set")
	}
	if c.Mail.Enabled && c.Mail.SMTPHost == "" {
		return errors.New("config: mail.smtp_host is required when mail is enabled")
	}
	return nil
}
