package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors so the operator
// sees every problem in one pass.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var validProviderTypes = map[string]bool{
	"openai":  true,
	"ollama":  true,
	"bedrock": true,
}

// Validate checks cfg for structural correctness. Catalog invariants
// (duplicate tools, empty roles, undeclared providers) are enforced by
// the catalog builder; this covers everything around it.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateDetector(cfg, ve)
	validateInvoker(cfg, ve)
	validateProviders(cfg, ve)
	validateGateway(cfg, ve)
	validateAudit(cfg, ve)
	validateHealth(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is not one of debug|info|warn|error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is not one of text|json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is not one of stdout|noop", cfg.Tracer.Exporter)
	}
}

func validateDetector(cfg *Config, ve *ValidationError) {
	if cfg.Detector.MinScore < 1 {
		ve.Add("detector.min_score must be >= 1")
	}
	if cfg.Detector.DefaultRole == "" {
		ve.Add("detector.default_role must be set")
	}
}

func validateInvoker(cfg *Config, ve *ValidationError) {
	if cfg.Invoker.AttemptTimeout <= 0 {
		ve.Add("invoker.attempt_timeout must be > 0")
	}
	if cfg.Invoker.MaxTokens < 0 {
		ve.Add("invoker.max_tokens must be >= 0")
	}
	if cfg.Aggregate.Concurrency < 1 {
		ve.Add("aggregate.concurrency must be >= 1")
	}
}

func validateProviders(cfg *Config, ve *ValidationError) {
	if len(cfg.Providers) == 0 {
		ve.Add("at least one provider must be declared")
	}
	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.Name == "" {
			ve.Add("provider with empty name")
			continue
		}
		if seen[p.Name] {
			ve.Add("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if !validProviderTypes[p.Type] {
			ve.Add("provider %q: type %q is not one of openai|ollama|bedrock", p.Name, p.Type)
		}
		if p.Type == "openai" && p.APIKey == "" && !strings.Contains(p.BaseURL, "localhost") && !strings.Contains(p.BaseURL, "127.0.0.1") {
			ve.Add("provider %q: api_key is required for remote openai endpoints", p.Name)
		}
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port", cfg.Gateway.Addr)
	}
	if len(cfg.Gateway.Tokens) == 0 {
		ve.Add("gateway.tokens must not be empty when the gateway is enabled")
	}
	for _, t := range cfg.Gateway.Tokens {
		if t.Name == "" || t.Token == "" {
			ve.Add("gateway token entries require both name and token")
			break
		}
	}
	if cfg.Gateway.RateLimit.Enabled {
		if cfg.Gateway.RateLimit.RequestsPerMin <= 0 {
			ve.Add("gateway.rate_limit.requests_per_min must be > 0")
		}
		if cfg.Gateway.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0")
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		ve.Add("audit.path must be set when audit is enabled")
	}
}

func validateHealth(cfg *Config, ve *ValidationError) {
	if !cfg.Health.Enabled {
		return
	}
	if cfg.Health.Schedule == "" {
		ve.Add("health.schedule must be set when health monitoring is enabled")
	}
	if cfg.Health.ProbeTimeout <= 0 {
		ve.Add("health.probe_timeout must be > 0")
	}
}
