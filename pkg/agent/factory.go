package agent

import (
	"fmt"
	"net/http"
	"time"

	"researchagent/pkg/agent/internal/llmimpl/anthropic"
	"researchagent/pkg/agent/internal/llmimpl/google"
	"researchagent/pkg/agent/internal/llmimpl/groq"
	"researchagent/pkg/agent/internal/llmimpl/ollama"
	"researchagent/pkg/agent/internal/llmimpl/openaiofficial"
	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/middleware/fallback"
	"researchagent/pkg/agent/middleware/logging"
	"researchagent/pkg/agent/middleware/metrics"
	"researchagent/pkg/agent/middleware/normalize"
	"researchagent/pkg/agent/middleware/resilience/circuit"
	"researchagent/pkg/agent/middleware/resilience/ratelimit"
	"researchagent/pkg/agent/middleware/resilience/retry"
	"researchagent/pkg/agent/middleware/resilience/timeout"
	"researchagent/pkg/config"
	"researchagent/pkg/logx"
)

// ClientSettings holds everything needed to reach one provider.
type ClientSettings struct {
	HTTPClient     *http.Client
	Provider       string
	Model          string
	FallbackModel  string // Empty disables the inline fallback
	APIKey         string
	BaseURL        string
	Retry          retry.Config // MaxRetries comes from each agent's Config
	CircuitBreaker circuit.Config
	RateLimit      ratelimit.Config
	Timeout        time.Duration // Per provider call; 0 means no deadline
	TransientOnly  bool
}

// SettingsFromConfig maps the loaded configuration onto ClientSettings.
func SettingsFromConfig(cfg *config.Config, apiKey string) ClientSettings {
	return ClientSettings{
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		APIKey:        apiKey,
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.Timeout,
		Retry: retry.Config{
			Delay:         cfg.Retry.Delay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: cfg.Retry.BackoffFactor,
			Jitter:        cfg.Retry.Jitter,
		},
		TransientOnly: cfg.Retry.TransientOnly,
		CircuitBreaker: circuit.Config{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
		},
		RateLimit: ratelimit.Config{
			TokensPerMinute: cfg.RateLimit.TokensPerMinute,
			MaxConcurrency:  cfg.RateLimit.MaxConcurrency,
		},
	}
}

// ProviderDisplayName returns the name used in log lines and terminal errors.
func ProviderDisplayName(provider string) string {
	switch provider {
	case config.ProviderGroq:
		return "Groq"
	case config.ProviderOpenAI:
		return "OpenAI"
	case config.ProviderAnthropic:
		return "Anthropic"
	case config.ProviderOllama:
		return "Ollama"
	case config.ProviderGoogle:
		return "Gemini"
	default:
		return provider
	}
}

// NewProviderClient creates the raw provider adapter for settings.
func NewProviderClient(settings ClientSettings) (llm.LLMClient, error) {
	if settings.Model == "" {
		return nil, fmt.Errorf("model must not be empty")
	}
	if settings.APIKey == "" && settings.Provider != config.ProviderOllama {
		return nil, fmt.Errorf("no API key for provider %s", settings.Provider)
	}

	model := config.ProviderModelName(settings.Model)
	switch settings.Provider {
	case config.ProviderGroq:
		return groq.NewClient(settings.APIKey, model, settings.BaseURL, settings.HTTPClient), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClient(settings.APIKey, model, settings.BaseURL, settings.HTTPClient), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(settings.APIKey, model, settings.BaseURL, settings.HTTPClient), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(settings.BaseURL, model, settings.HTTPClient), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(settings.APIKey, model, settings.BaseURL, settings.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", settings.Provider)
	}
}

// Factory creates ChatClients with properly configured middleware chains.
// Clients from one Factory share the provider adapter, circuit breaker and
// rate limiter.
type Factory struct {
	provider llm.LLMClient
	recorder metrics.Recorder
	breaker  circuit.Breaker
	limiter  *ratelimit.Limiter
	sleeper  retry.Sleeper
	settings ClientSettings
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithMetricsRecorder sets the recorder for request, fallback and failed-cycle metrics.
// A nil recorder keeps the no-op default.
func WithMetricsRecorder(recorder metrics.Recorder) FactoryOption {
	return func(f *Factory) {
		if recorder != nil {
			f.recorder = recorder
		}
	}
}

// WithSleeper replaces the wait between failed retry cycles.
func WithSleeper(sleeper retry.Sleeper) FactoryOption {
	return func(f *Factory) { f.sleeper = sleeper }
}

// WithProviderClient uses client instead of constructing a provider adapter.
func WithProviderClient(client llm.LLMClient) FactoryOption {
	return func(f *Factory) { f.provider = client }
}

// NewFactory creates a factory for settings.
func NewFactory(settings ClientSettings, opts ...FactoryOption) (*Factory, error) {
	f := &Factory{
		recorder: metrics.Nop(),
		settings: settings,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.provider == nil {
		provider, err := NewProviderClient(settings)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", settings.Provider, err)
		}
		f.provider = provider
	}
	if settings.CircuitBreaker.Enabled() {
		f.breaker = circuit.New(settings.CircuitBreaker)
	}
	if settings.RateLimit.Enabled() {
		f.limiter = ratelimit.New(ProviderDisplayName(settings.Provider), settings.RateLimit, logx.NewLogger("ratelimit"))
	}
	return f, nil
}

// NewChatClient builds a ChatClient for one agent. The chain, outermost first:
// metrics, circuit breaker, retry, normalize, verbose logging, fallback,
// empty-response logging, rate limit, per-call timeout, provider.
func (f *Factory) NewChatClient(cfg Config) (*ChatClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logx.NewLogger(cfg.Name)
	providerName := ProviderDisplayName(f.settings.Provider)
	if cfg.MaxRetries == 0 {
		logger.Warn("max_retries is 0: every send will fail without calling %s", providerName)
	}

	retryConfig := f.settings.Retry
	retryConfig.MaxRetries = cfg.MaxRetries
	classifier := retry.RetryAll
	if f.settings.TransientOnly {
		classifier = retry.ShouldRetry
	}
	retryOpts := []retry.Option{
		retry.WithAgent(cfg.Name, providerName),
		retry.WithLogger(logger),
		retry.WithFailureHook(func(int, error) { f.recorder.IncFailedCycle(cfg.Name) }),
	}
	if f.sleeper != nil {
		retryOpts = append(retryOpts, retry.WithSleeper(f.sleeper))
	}

	var circuitMW, verboseMW llm.Middleware
	if f.breaker != nil {
		circuitMW = circuit.Middleware(f.breaker, logger)
	}
	if cfg.Verbose {
		verboseMW = logging.VerboseMiddleware(logger, providerName)
	}

	onFallback := func(from, to string) { f.recorder.IncFallback(cfg.Name, from, to) }

	client := llm.Chain(f.provider,
		metrics.Middleware(f.recorder, cfg.Name, nil, logger),
		circuitMW,
		retry.Middleware(retry.NewPolicy(retryConfig, classifier), retryOpts...),
		normalize.Middleware(logger),
		verboseMW,
		fallback.Middleware(config.ProviderModelName(f.settings.FallbackModel), logger, onFallback),
		logging.EmptyResponseLoggingMiddleware(logger),
		ratelimit.Middleware(f.limiter, nil),
		timeout.Middleware(f.settings.Timeout),
	)

	return NewChatClient(cfg, client, logger), nil
}

// RateLimitStats reports the shared limiter state; ok is false when rate
// limiting is disabled.
func (f *Factory) RateLimitStats() (stats ratelimit.Stats, ok bool) {
	if f.limiter == nil {
		return ratelimit.Stats{}, false
	}
	return f.limiter.GetStats(), true
}
