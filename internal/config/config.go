// Package config loads application configuration from defaults, an optional
// YAML file and STATUSBOARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore, e.g.
// STATUSBOARD_DATABASE__URL sets database.url.
const EnvPrefix = "STATUSBOARD_"

// ConfigPathEnv names the variable holding an optional YAML config path.
const ConfigPathEnv = EnvPrefix + "CONFIG"

// DefaultAllowedOrigin is used when no CORS origins are configured.
const DefaultAllowedOrigin = "http://localhost:3000"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	JWT      JWTConfig      `koanf:"jwt"`
	CORS     CORSConfig     `koanf:"cors"`
	Realtime RealtimeConfig `koanf:"realtime"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures access token signing.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// CORSConfig lists origins allowed for browser requests and websocket upgrades.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RealtimeConfig configures subscriber connections and broadcast fan-out.
type RealtimeConfig struct {
	SendTimeout        time.Duration `koanf:"send_timeout"`
	MaxConcurrentSends int           `koanf:"max_concurrent_sends"`
	PingInterval       time.Duration `koanf:"ping_interval"`
	PongWait           time.Duration `koanf:"pong_wait"`
	WriteWait          time.Duration `koanf:"write_wait"`
	ReadLimit          int64         `koanf:"read_limit"`
	InboundRate        float64       `koanf:"inbound_rate"`
	InboundBurst       int           `koanf:"inbound_burst"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration: 30 * time.Minute,
		},
		Realtime: RealtimeConfig{
			SendTimeout:        5 * time.Second,
			MaxConcurrentSends: 64,
			PingInterval:       30 * time.Second,
			PongWait:           60 * time.Second,
			WriteWait:          10 * time.Second,
			ReadLimit:          4096,
			InboundRate:        5,
			InboundBurst:       10,
		},
	}
}

// Load builds the configuration. Values from the YAML file at path (if
// non-empty) override defaults, and environment variables override both.
// When path is empty, STATUSBOARD_CONFIG is consulted.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{DefaultAllowedOrigin}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps STATUSBOARD_DATABASE__MAX_OPEN_CONNS to database.max_open_conns.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration must be positive"))
	}
	if c.Realtime.SendTimeout <= 0 {
		errs = append(errs, errors.New("realtime.send_timeout must be positive"))
	}
	if c.Realtime.MaxConcurrentSends <= 0 {
		errs = append(errs, errors.New("realtime.max_concurrent_sends must be positive"))
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.PongWait <= c.Realtime.PingInterval {
		errs = append(errs, errors.New("realtime.pong_wait must exceed a positive realtime.ping_interval"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
