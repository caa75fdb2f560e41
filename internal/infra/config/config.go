// Package config loads and validates the roleroute YAML configuration,
// including the role/tool catalog declarations and provider credentials.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"roleroute/internal/domain"
)

// EnvPrefix namespaces all environment overrides.
const envPrefix = "ROLEROUTE_"

// Config is the top-level application configuration.
type Config struct {
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
	Detector       DetectorConfig       `yaml:"detector"`
	Invoker        InvokerConfig        `yaml:"invoker"`
	Aggregate      AggregateConfig      `yaml:"aggregate"`
	Providers      []ProviderConfig     `yaml:"providers"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Roles          []domain.Role        `yaml:"roles"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	Audit          AuditConfig          `yaml:"audit"`
	Health         HealthConfig         `yaml:"health"`
}

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stdout | stderr | file path
}

// TracerConfig holds OpenTelemetry settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// DetectorConfig holds role detection settings.
type DetectorConfig struct {
	// MinScore is the confidence threshold: a top detection score below
	// it falls back to DefaultRole with a low_confidence status.
	MinScore    int    `yaml:"min_score"`
	DefaultRole string `yaml:"default_role"`
}

// InvokerConfig tunes provider chain execution.
type InvokerConfig struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxTokens      int           `yaml:"max_tokens"`
}

// AggregateConfig tunes the explicit multi-role operation.
type AggregateConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// PoolConfig holds HTTP connection pool sizing for provider clients.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig declares one backing provider endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai | ollama | bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// CircuitBreakerConfig configures the per-provider circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration `yaml:"interval"`
}

// GatewayTokenConfig is one static gateway auth token.
type GatewayTokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// RateLimitConfig holds per-client admission settings for the gateway.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// GatewayConfig holds the WebSocket gateway settings.
type GatewayConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	Addr      string               `yaml:"addr"`
	Tokens    []GatewayTokenConfig `yaml:"tokens"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
}

// AuditConfig holds the invocation log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite database file
}

// HealthConfig holds the provider health monitor settings.
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression or @every duration for probe sweeps.
	Schedule string `yaml:"schedule"`
	// ProbeTimeout bounds each individual provider probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Defaults returns the configuration defaults. The role catalog has no
// default: it must be declared.
func Defaults() *Config {
	return &Config{
		Logger:    LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer:    TracerConfig{Enabled: false, Exporter: "noop"},
		Detector:  DetectorConfig{MinScore: 1},
		Invoker:   InvokerConfig{AttemptTimeout: 60 * time.Second},
		Aggregate: AggregateConfig{Concurrency: 3},
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8790",
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 60,
				Burst:          10,
			},
		},
		Audit:  AuditConfig{Enabled: true, Path: "./data/audit.db"},
		Health: HealthConfig{Enabled: true, Schedule: "@every 30s", ProbeTimeout: 5 * time.Second},
	}
}

// Load reads the configuration from path, applies environment overrides,
// decrypts secrets when ROLEROUTE_CONFIG_KEY is set, and validates the
// result. A missing file yields the defaults (which then fail validation
// unless roles are supplied another way) so misconfiguration surfaces at
// startup, never mid-traffic.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(envPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ROLEROUTE_* environment variables on top of
// the loaded configuration.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(envPrefix + "LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(envPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv(envPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv(envPrefix + "DETECTOR_DEFAULT_ROLE"); v != "" {
		cfg.Detector.DefaultRole = v
	}
	if v := os.Getenv(envPrefix + "DETECTOR_MIN_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Detector.MinScore = n
		}
	}
	if v := os.Getenv(envPrefix + "INVOKER_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Invoker.AttemptTimeout = d
		}
	}
	if v := os.Getenv(envPrefix + "GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv(envPrefix + "AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
}

// ProviderNames returns the set of declared provider names, as required
// by the catalog builder.
func (c *Config) ProviderNames() map[string]bool {
	names := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		names[p.Name] = true
	}
	return names
}

// --- Secret handling ---
//
// Secrets may be stored encrypted in the config file with an "enc:"
// prefix; the value format is hex(salt) + ":" + hex(nonce||ciphertext),
// AES-256-GCM with an argon2id-derived key.

const encPrefix = "enc:"

func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Providers {
		key := cfg.Providers[i].APIKey
		if strings.HasPrefix(key, encPrefix) {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, encPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.Providers[i].Name, err)
			}
			cfg.Providers[i].APIKey = decrypted
		}
	}
	for i := range cfg.Gateway.Tokens {
		tok := cfg.Gateway.Tokens[i].Token
		if strings.HasPrefix(tok, encPrefix) {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, encPrefix), passphrase)
			if err != nil {
				return fmt.Errorf("gateway token %s: %w", cfg.Gateway.Tokens[i].Name, err)
			}
			cfg.Gateway.Tokens[i].Token = decrypted
		}
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// EncryptValue encrypts plaintext for storage in the config file.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue reverses EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
