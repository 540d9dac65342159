// Package config provides configuration management for the research agents.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file, a .env file and the process environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Provider constants.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Environment variable names.
const (
	EnvModel           = "GROQ_MODEL"
	EnvFallbackModel   = "GROQ_FALLBACK_MODEL"
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvLogLevel        = "LOG_LEVEL"
)

// Model defaults.
const (
	DefaultModel         = "llama-3.1-70b-versatile"
	DefaultFallbackModel = "llama-3.1-8b-instant"
	ollamaPrefix         = "ollama:"
)

// Config is the complete runtime configuration.
type Config struct {
	Provider       string               `yaml:"provider"`
	Model          string               `yaml:"model"`
	FallbackModel  string               `yaml:"fallback_model"`
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Agents         AgentsConfig         `yaml:"agents"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Log            LogConfig            `yaml:"log"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Secrets        SecretsConfig        `yaml:"secrets"`
}

// AgentsConfig holds per-agent settings.
type AgentsConfig struct {
	Validator AgentSettings `yaml:"validator"`
}

// AgentSettings configures one agent.
type AgentSettings struct {
	MaxRetries int  `yaml:"max_retries"`
	Verbose    bool `yaml:"verbose"`
}

// RetryConfig controls waiting between failed cycles.
type RetryConfig struct {
	Delay         time.Duration `yaml:"delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
	TransientOnly bool          `yaml:"transient_only"` // Skip retrying auth and bad-request failures
}

// CircuitBreakerConfig configures the optional breaker; FailureThreshold 0 disables it.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MinRateLimitTokensPerMinute leaves room in the bucket for one validator
// request (600 output tokens plus a short prompt).
const MinRateLimitTokensPerMinute = 1000

// RateLimitConfig throttles calls to the provider; TokensPerMinute 0 disables it.
type RateLimitConfig struct {
	TokensPerMinute int `yaml:"tokens_per_minute"`
	MaxConcurrency  int `yaml:"max_concurrency"`
}

// LogConfig configures logx.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile path; empty disables export
}

// SecretsConfig names the optional credential sources.
type SecretsConfig struct {
	File         string `yaml:"file"`          // Encrypted secrets file
	SSMParameter string `yaml:"ssm_parameter"` // SSM parameter holding {"token": "..."}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:         DefaultModel,
		FallbackModel: DefaultFallbackModel,
		Agents: AgentsConfig{
			Validator: AgentSettings{MaxRetries: 2, Verbose: true},
		},
		Retry: RetryConfig{
			Delay:         1500 * time.Millisecond,
			MaxDelay:      1500 * time.Millisecond,
			BackoffFactor: 1.0,
		},
		CircuitBreaker: CircuitBreakerConfig{
			SuccessThreshold: 1,
			Timeout:          30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ProviderPattern maps a model-name prefix to a provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from model names.
// Order matters: the first matching prefix wins.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{ollamaPrefix, ProviderOllama}, // Explicit prefix like "ollama:phi4"
	{"llama", ProviderGroq},
	{"mixtral", ProviderGroq},
	{"gemma", ProviderGroq},
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
}

// GetModelProvider returns the provider for a model name.
func GetModelProvider(modelName string) (string, error) {
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no provider pattern match - set provider explicitly", modelName)
}

// ProviderModelName strips routing prefixes such as "ollama:" from a model name.
func ProviderModelName(modelName string) string {
	return strings.TrimPrefix(modelName, ollamaPrefix)
}

// IsValidProvider reports whether name is a supported provider.
func IsValidProvider(name string) bool {
	switch name {
	case ProviderGroq, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGoogle:
		return true
	default:
		return false
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if !IsValidProvider(c.Provider) {
		return fmt.Errorf("unknown provider %q (expected groq, openai, anthropic, ollama or google)", c.Provider)
	}
	if err := c.validateFallback(); err != nil {
		return err
	}
	if c.Agents.Validator.MaxRetries < 0 {
		return fmt.Errorf("agents.validator.max_retries must be >= 0, got %d", c.Agents.Validator.MaxRetries)
	}
	if c.Retry.Delay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Retry.BackoffFactor < 0 {
		return fmt.Errorf("retry.backoff_factor must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.CircuitBreaker.FailureThreshold < 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must not be negative")
	}
	if c.RateLimit.TokensPerMinute < 0 || c.RateLimit.MaxConcurrency < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.RateLimit.TokensPerMinute > 0 && c.RateLimit.TokensPerMinute < MinRateLimitTokensPerMinute {
		return fmt.Errorf("rate_limit.tokens_per_minute must be 0 or at least %d, got %d",
			MinRateLimitTokensPerMinute, c.RateLimit.TokensPerMinute)
	}
	return nil
}

// validateFallback rejects a fallback model that names a different provider.
// It only applies when the primary model's name maps to the configured
// provider, so plain local model names with an explicit provider pass.
func (c *Config) validateFallback() error {
	if c.FallbackModel == "" {
		return nil
	}
	if primary, err := GetModelProvider(c.Model); err != nil || primary != c.Provider {
		return nil
	}
	if provider, err := GetModelProvider(c.FallbackModel); err == nil && provider != c.Provider {
		return fmt.Errorf("fallback model %q belongs to %s but provider is %s", c.FallbackModel, provider, c.Provider)
	}
	return nil
}
