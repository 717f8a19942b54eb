// Package config handles loading, parsing, and validating application configuration.
// It defines the structure for configuration settings, provides default values,
// loads settings from files (YAML), and applies overrides from environment variables.
// file: internal/config/config.go
package config

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/logging"
	"gopkg.in/yaml.v3"
)

// Entry point names used as keys in AuthServiceConfig.Endpoints.
const (
	EntryAdminLogin    = "admin_login"
	EntryCustomerLogin = "customer_login"
	EntryRegistration  = "registration"
	EntryCustomerReset = "customer_reset"
	EntryAdminReset    = "admin_reset"
)

// Session backend names.
const (
	BackendAuto    = "auto"
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// EndpointSet holds the REST paths for one entry point's factor exchange.
type EndpointSet struct {
	Dispatch string `yaml:"dispatch"`
	Resend   string `yaml:"resend"`
	Verify   string `yaml:"verify"`
}

// AuthServiceConfig describes how to reach the remote auth service.
type AuthServiceConfig struct {
	// BaseURL is the scheme and host of the ordering backend API. Required.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds every single request.
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond and Burst configure the client-side throttle. No request is ever retried.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// Endpoints maps entry point names to their paths.
	Endpoints map[string]EndpointSet `yaml:"endpoints"`
	OAuthPath string                 `yaml:"oauth_path"`
	ClaimPath string                 `yaml:"claim_path"`
}

// SessionConfig selects where the established session is persisted.
type SessionConfig struct {
	// Backend is one of auto, keyring, file, redis, memory. Auto prefers the OS
	// keyring and falls back to TokenPath.
	Backend string `yaml:"backend"`
	// TokenPath is the file used by the file backend. Supports '~'.
	TokenPath string `yaml:"token_path"`
	// KeyringService names the keyring entry.
	KeyringService string `yaml:"keyring_service"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
	RedisPrefix    string `yaml:"redis_prefix"`
	// VerifyKey, when set, is used to verify session tokens: an HMAC secret for
	// HS256 or a PEM public key for RS256.
	VerifyKey       string `yaml:"verify_key"`
	VerifyAlgorithm string `yaml:"verify_algorithm"`
}

// FlowConfig holds per-variant timings.
type FlowConfig struct {
	LoginCooldown          time.Duration `yaml:"login_cooldown"`
	RegistrationCooldown   time.Duration `yaml:"registration_cooldown"`
	ResetCooldown          time.Duration `yaml:"reset_cooldown"`
	ClaimTimeout           time.Duration `yaml:"claim_timeout"`
	RegistrationCodeLength int           `yaml:"registration_code_length"`
}

// SchemaConfig holds settings related to auth service response validation.
type SchemaConfig struct {
	// SchemaOverrideURI points at a file:// or http(s):// schema replacing the embedded one.
	SchemaOverrideURI string `yaml:"schemaOverrideURI,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root configuration structure.
type Config struct {
	AuthService AuthServiceConfig `yaml:"auth_service"`
	Session     SessionConfig     `yaml:"session"`
	Flow        FlowConfig        `yaml:"flow"`
	Schema      SchemaConfig      `yaml:"schema"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DefaultEndpoints returns the REST paths used by the ordering backend.
func DefaultEndpoints() map[string]EndpointSet {
	return map[string]EndpointSet{
		EntryAdminLogin: {
			Dispatch: "/api/admin/auth/login",
			Resend:   "/api/admin/auth/resend-otp",
			Verify:   "/api/admin/auth/verify-otp",
		},
		EntryCustomerLogin: {
			Dispatch: "/api/customers/auth/login",
			Resend:   "/api/customers/auth/resend-otp",
			Verify:   "/api/customers/auth/verify-otp",
		},
		EntryRegistration: {
			Dispatch: "/api/customers/auth/register",
			Resend:   "/api/customers/auth/register/resend",
			Verify:   "/api/customers/auth/register/verify",
		},
		EntryCustomerReset: {
			Dispatch: "/api/customers/auth/forgot-password",
			Resend:   "/api/customers/auth/forgot-password",
			Verify:   "/api/customers/auth/reset-password",
		},
		EntryAdminReset: {
			Dispatch: "/api/admin/auth/forgot-password",
			Resend:   "/api/admin/auth/forgot-password",
			Verify:   "/api/admin/auth/reset-password",
		},
	}
}

// DefaultConfig returns a configuration populated with default values and
// environment overrides applied.
func DefaultConfig() *Config {
	tokenPath := "tableside_session.json" //nolint:gosec // G101: fallback path, not a secret.
	if homeDir, err := os.UserHomeDir(); err == nil {
		tokenPath = homeDir + "/.config/tableside/session.json"
	}

	cfg := &Config{
		AuthService: AuthServiceConfig{
			BaseURL:           "http://localhost:8080",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
			Endpoints:         DefaultEndpoints(),
			OAuthPath:         "/api/customers/auth/google",
			ClaimPath:         "/api/rewards/claim",
		},
		Session: SessionConfig{
			Backend:         BackendAuto,
			TokenPath:       tokenPath,
			KeyringService:  "TablesideSession",
			RedisPrefix:     "tableside:session",
			VerifyAlgorithm: "HS256",
		},
		Flow: FlowConfig{
			LoginCooldown:          60 * time.Second,
			RegistrationCooldown:   30 * time.Second,
			ResetCooldown:          30 * time.Second,
			ClaimTimeout:           5 * time.Second,
			RegistrationCodeLength: 6,
		},
		Logging: LoggingConfig{Level: "info"},
	}
	applyEnvironmentOverrides(cfg, logging.GetLogger("config_default"))
	return cfg
}

// LoadFromFile loads configuration from the YAML file at path on top of the
// defaults, then applies environment overrides. Supports '~' in path.
func LoadFromFile(path string) (*Config, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path comes from a command-line flag or the default location.
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file: %s", expanded)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file YAML: %s", expanded)
	}
	mergeDefaultEndpoints(cfg)

	applyEnvironmentOverrides(cfg, logging.GetLogger("config_load"))
	return cfg, nil
}

// Load returns defaults when path is empty, otherwise LoadFromFile. The result is validated.
func Load(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = DefaultConfig()
	} else if cfg, err = LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeDefaultEndpoints fills entry points the file did not mention, and empty
// paths inside entry points it did.
func mergeDefaultEndpoints(cfg *Config) {
	if cfg.AuthService.Endpoints == nil {
		cfg.AuthService.Endpoints = map[string]EndpointSet{}
	}
	for name, def := range DefaultEndpoints() {
		set := cfg.AuthService.Endpoints[name]
		if set.Dispatch == "" {
			set.Dispatch = def.Dispatch
		}
		if set.Resend == "" {
			set.Resend = def.Resend
		}
		if set.Verify == "" {
			set.Verify = def.Verify
		}
		cfg.AuthService.Endpoints[name] = set
	}
}

// Validate checks the configuration for values the flow cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.AuthService.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf("auth_service.base_url must be an absolute http(s) URL, got %q", c.AuthService.BaseURL)
	}
	if c.AuthService.Timeout <= 0 {
		return errors.New("auth_service.timeout must be positive")
	}
	if c.AuthService.RequestsPerSecond <= 0 || c.AuthService.Burst < 1 {
		return errors.New("auth_service.requests_per_second and burst must be positive")
	}
	for name, set := range c.AuthService.Endpoints {
		if set.Dispatch == "" || set.Verify == "" {
			return errors.Newf("auth_service.endpoints.%s needs dispatch and verify paths", name)
		}
	}
	if c.Flow.LoginCooldown <= 0 || c.Flow.RegistrationCooldown <= 0 || c.Flow.ResetCooldown <= 0 {
		return errors.New("flow cooldowns must be positive")
	}
	if c.Flow.RegistrationCodeLength < 0 {
		return errors.New("flow.registration_code_length cannot be negative")
	}
	switch c.Session.Backend {
	case BackendAuto, BackendKeyring, BackendFile, BackendMemory:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			return errors.New("session.redis_addr is required for the redis backend")
		}
	default:
		return errors.Newf("unknown session.backend %q", c.Session.Backend)
	}
	switch c.Session.VerifyAlgorithm {
	case "", "HS256", "RS256":
	default:
		return errors.Newf("unsupported session.verify_algorithm %q", c.Session.VerifyAlgorithm)
	}
	return nil
}

// applyEnvironmentOverrides applies overrides from TABLESIDE_* variables.
// Environment variables take precedence over file values and defaults.
func applyEnvironmentOverrides(cfg *Config, logger logging.Logger) {
	if v := os.Getenv("TABLESIDE_AUTH_URL"); v != "" {
		logger.Debug("Overriding auth service URL from environment.", "envVar", "TABLESIDE_AUTH_URL", "value", v)
		cfg.AuthService.BaseURL = v
	}
	if v := os.Getenv("TABLESIDE_AUTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AuthService.Timeout = d
		} else {
			logger.Warn("Invalid TABLESIDE_AUTH_TIMEOUT ignored.", "value", v, "error", err)
		}
	}
	if v := os.Getenv("TABLESIDE_SESSION_BACKEND"); v != "" {
		logger.Debug("Overriding session backend from environment.", "envVar", "TABLESIDE_SESSION_BACKEND", "value", v)
		cfg.Session.Backend = v
	}
	if v := os.Getenv("TABLESIDE_TOKEN_PATH"); v != "" {
		expanded, err := ExpandPath(v)
		if err != nil {
			logger.Warn("Could not expand '~' in TABLESIDE_TOKEN_PATH.", "error", err)
			expanded = v
		}
		cfg.Session.TokenPath = expanded
	}
	if v := os.Getenv("TABLESIDE_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("TABLESIDE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil && db >= 0 {
			cfg.Session.RedisDB = db
		} else {
			logger.Warn("Invalid TABLESIDE_REDIS_DB ignored.", "value", v, "error", err)
		}
	}
	if v := os.Getenv("TABLESIDE_SESSION_VERIFY_KEY"); v != "" {
		// Never log the key itself.
		logger.Debug("Session verify key supplied by environment.", "envVar", "TABLESIDE_SESSION_VERIFY_KEY")
		cfg.Session.VerifyKey = v
	}
	if v := os.Getenv("TABLESIDE_SCHEMA_OVERRIDE_URI"); v != "" {
		cfg.Schema.SchemaOverrideURI = v
	}
	if v := os.Getenv("TABLESIDE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
