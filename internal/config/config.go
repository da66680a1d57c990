// Package config loads the typed server configuration from viper. Values
// come from defaults, an optional fragment.yaml and FRAGMENT_* environment
// variables, in increasing order of precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dots replaced
// by underscores: server.port is FRAGMENT_SERVER_PORT.
const EnvPrefix = "FRAGMENT"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the full server configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Codeshot  CodeshotConfig  `mapstructure:"codeshot" yaml:"codeshot"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	CORSOrigin      string        `mapstructure:"cors_origin" yaml:"cors_origin"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`
	EnableUI        bool          `mapstructure:"enable_ui" yaml:"enable_ui"`
}

// DatabaseConfig selects the credential store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// AuthConfig holds the signing and sealing secrets and the password hash
// cost.
type AuthConfig struct {
	JWTSecret    string       `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	APIKeySecret string       `mapstructure:"api_key_secret" yaml:"api_key_secret"`
	Argon2       Argon2Config `mapstructure:"argon2" yaml:"argon2"`
}

// Argon2Config sets the Argon2id cost parameters for new password hashes.
type Argon2Config struct {
	Memory      uint32 `mapstructure:"memory" yaml:"memory"`
	Time        uint32 `mapstructure:"time" yaml:"time"`
	Parallelism uint8  `mapstructure:"parallelism" yaml:"parallelism"`
}

// RateLimitConfig allows Max requests per client IP in each Window.
type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window" yaml:"window"`
	Max    int           `mapstructure:"max" yaml:"max"`
}

// CodeshotConfig sizes the renderer pool.
type CodeshotConfig struct {
	PoolSize          int           `mapstructure:"pool_size" yaml:"pool_size"`
	QueueDepth        int           `mapstructure:"queue_depth" yaml:"queue_depth"`
	RenderTimeout     time.Duration `mapstructure:"render_timeout" yaml:"render_timeout"`
	PerRequestBrowser bool          `mapstructure:"per_request_browser" yaml:"per_request_browser"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	NoSandbox         bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.cors_origin", "http://localhost:3000")
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", int64(1<<20))
	v.SetDefault("server.enable_ui", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.api_key_secret", "")
	v.SetDefault("auth.argon2.memory", 64*1024)
	v.SetDefault("auth.argon2.time", 3)
	v.SetDefault("auth.argon2.parallelism", 1)

	v.SetDefault("rate_limit.window", 15*time.Minute)
	v.SetDefault("rate_limit.max", 100)

	v.SetDefault("codeshot.pool_size", 2)
	v.SetDefault("codeshot.queue_depth", 16)
	v.SetDefault("codeshot.render_timeout", 30*time.Second)
	v.SetDefault("codeshot.per_request_browser", false)
	v.SetDefault("codeshot.chrome_path", "")
	v.SetDefault("codeshot.no_sandbox", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.sample_interval", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Init prepares v: defaults, environment binding and the optional config
// file. A missing file is not an error; a malformed one is.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("fragment")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.fragment")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if file == "" && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode converts v into a Config without validating it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Server.Environment == EnvProduction
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks values that would otherwise fail late. Production mode
// requires both secrets.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("server.environment must be %q or %q, got %q",
			EnvDevelopment, EnvProduction, c.Server.Environment))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite, postgres or mysql, got %q", c.Database.Driver))
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for %s", c.Database.Driver))
	}

	if c.Production() {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required in production"))
		}
		if c.Auth.APIKeySecret == "" {
			errs = append(errs, errors.New("auth.api_key_secret is required in production"))
		}
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.max and rate_limit.window must be positive"))
	}
	if c.Codeshot.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("codeshot.pool_size must be positive, got %d", c.Codeshot.PoolSize))
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// EnsureSecrets fills empty secrets with random values for development. It
// returns the keys it generated so the caller can warn that sessions and
// stored API keys will not survive a restart.
func (c *Config) EnsureSecrets() ([]string, error) {
	var generated []string
	for _, s := range []struct {
		key string
		val *string
	}{
		{"auth.jwt_secret", &c.Auth.JWTSecret},
		{"auth.api_key_secret", &c.Auth.APIKeySecret},
	} {
		if *s.val != "" {
			continue
		}
		if c.Production() {
			return nil, fmt.Errorf("%s is required in production", s.key)
		}
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		*s.val = secret
		generated = append(generated, s.key)
	}
	return generated, nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return l, nil
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger(w io.Writer, debug bool) *slog.Logger {
	level, err := ParseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fragment"
	}
	return filepath.Join(home, ".fragment")
}
