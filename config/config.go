// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/actionkit/adapters/hasher"
	"github.com/artpar/actionkit/domain/ratelimit"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ACTIONKIT_"

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Debug       bool              `yaml:"debug"`
	Logging     LoggingConfig     `yaml:"logging"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Auth        AuthConfig        `yaml:"auth"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "trace", "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// NegotiationConfig selects the formatters offered to clients, in order
// of preference. The first renderer is the fallback for error responses.
type NegotiationConfig struct {
	Renderers []string `yaml:"renderers"`
	Parsers   []string `yaml:"parsers"`
}

// AuthConfig configures the sample authentication filters.
type AuthConfig struct {
	Realm string               `yaml:"realm"`
	JWT   JWTConfig            `yaml:"jwt"`
	Users map[string]UserEntry `yaml:"users"`
}

// JWTConfig configures bearer tokens.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	Expiration time.Duration `yaml:"expiration"`
}

// UserEntry is a basic-auth account.
type UserEntry struct {
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

// ThrottleConfig configures the global throttle filter.
type ThrottleConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
	Burst   int           `yaml:"burst"`
}

// Rate returns the throttle rate.
func (t ThrottleConfig) Rate() ratelimit.Config {
	return ratelimit.Config{Limit: t.Limit, Window: t.Window, Burst: t.Burst}
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references. Bare $VAR is left alone so bcrypt
// hashes survive.
func expandEnv(data []byte) []byte {
	return envRefRe.ReplaceAllFunc(data, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// Parse builds a configuration from YAML, expanding ${VAR} references and
// applying environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	data = expandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnv creates configuration from defaults and environment
// variables alone.
//
// Environment variables:
//
//	ACTIONKIT_SERVER_HOST             - Server host (default: 0.0.0.0)
//	ACTIONKIT_SERVER_PORT             - Server port (default: 8080)
//	ACTIONKIT_SERVER_READ_TIMEOUT     - Read timeout (default: 30s)
//	ACTIONKIT_SERVER_WRITE_TIMEOUT    - Write timeout (default: 60s)
//	ACTIONKIT_SERVER_REQUEST_TIMEOUT  - Per request timeout (default: 60s)
//	ACTIONKIT_SERVER_SHUTDOWN_TIMEOUT - Graceful shutdown budget (default: 15s)
//	ACTIONKIT_DEBUG                   - Expose error details in 500 responses
//	ACTIONKIT_LOG_LEVEL               - Log level (default: info)
//	ACTIONKIT_LOG_FORMAT              - json or console (default: json)
//	ACTIONKIT_RENDERERS               - Comma separated renderer names (default: json,yaml)
//	ACTIONKIT_PARSERS                 - Comma separated parser names (default: json,form,yaml)
//	ACTIONKIT_AUTH_REALM              - Realm of WWW-Authenticate challenges (default: api)
//	ACTIONKIT_JWT_SECRET              - HS256 signing secret (default: random per process)
//	ACTIONKIT_JWT_ISSUER              - Token issuer (default: actionkit)
//	ACTIONKIT_JWT_EXPIRATION          - Token lifetime (default: 24h)
//	ACTIONKIT_THROTTLE_ENABLED        - Enable the global throttle
//	ACTIONKIT_THROTTLE_LIMIT          - Requests per window (default: 60)
//	ACTIONKIT_THROTTLE_WINDOW         - Window length (default: 1m)
//	ACTIONKIT_THROTTLE_BURST          - Extra requests per window (default: 0)
//	ACTIONKIT_METRICS_ENABLED         - Enable the metrics endpoint
//	ACTIONKIT_METRICS_PATH            - Metrics path (default: /metrics)
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads path when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies ACTIONKIT_* environment variables to the
// config. Environment variables always override file-based configuration;
// unparsable values are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	envString("SERVER_HOST", &cfg.Server.Host)
	envInt("SERVER_PORT", &cfg.Server.Port)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_REQUEST_TIMEOUT", &cfg.Server.RequestTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("DEBUG", &cfg.Debug)

	// Logging configuration
	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)

	// Negotiation configuration
	envList("RENDERERS", &cfg.Negotiation.Renderers)
	envList("PARSERS", &cfg.Negotiation.Parsers)

	// Auth configuration
	envString("AUTH_REALM", &cfg.Auth.Realm)
	envString("JWT_SECRET", &cfg.Auth.JWT.Secret)
	envString("JWT_ISSUER", &cfg.Auth.JWT.Issuer)
	envDuration("JWT_EXPIRATION", &cfg.Auth.JWT.Expiration)

	// Throttle configuration
	envBool("THROTTLE_ENABLED", &cfg.Throttle.Enabled)
	envInt("THROTTLE_LIMIT", &cfg.Throttle.Limit)
	envDuration("THROTTLE_WINDOW", &cfg.Throttle.Window)
	envInt("THROTTLE_BURST", &cfg.Throttle.Burst)

	// Metrics configuration
	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("METRICS_PATH", &cfg.Metrics.Path)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = parseBool(v)
	}
}

func envList(name string, dst *[]string) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if len(cfg.Negotiation.Renderers) == 0 {
		cfg.Negotiation.Renderers = []string{"json", "yaml"}
	}
	if len(cfg.Negotiation.Parsers) == 0 {
		cfg.Negotiation.Parsers = []string{"json", "form", "yaml"}
	}

	if cfg.Auth.Realm == "" {
		cfg.Auth.Realm = "api"
	}
	if cfg.Auth.JWT.Issuer == "" {
		cfg.Auth.JWT.Issuer = "actionkit"
	}
	if cfg.Auth.JWT.Expiration == 0 {
		cfg.Auth.JWT.Expiration = 24 * time.Hour
	}

	if cfg.Throttle.Limit == 0 {
		cfg.Throttle.Limit = 60
	}
	if cfg.Throttle.Window == 0 {
		cfg.Throttle.Window = time.Minute
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 ||
		cfg.Server.RequestTimeout < 0 || cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Auth.JWT.Expiration < 0 {
		return fmt.Errorf("auth.jwt.expiration must not be negative")
	}
	for name, u := range cfg.Auth.Users {
		if name == "" || strings.Contains(name, ":") {
			return fmt.Errorf("auth.users: invalid user name %q", name)
		}
		if !hasher.IsHash(u.PasswordHash) {
			return fmt.Errorf("auth.users.%s.password_hash is not a bcrypt hash", name)
		}
	}

	if cfg.Throttle.Enabled {
		if err := cfg.Throttle.Rate().Validate(); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}
	return nil
}
