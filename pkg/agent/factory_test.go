package agent

import (
	"testing"
	"time"

	"researchagent/pkg/agent/internal/llmimpl/anthropic"
	"researchagent/pkg/agent/internal/llmimpl/google"
	"researchagent/pkg/agent/internal/llmimpl/groq"
	"researchagent/pkg/agent/internal/llmimpl/ollama"
	"researchagent/pkg/agent/internal/llmimpl/openaiofficial"
	"researchagent/pkg/config"
)

func TestNewProviderClient(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		apiKey   string
		check    func(t *testing.T, client any)
	}{
		{config.ProviderGroq, "llama-3.1-70b-versatile", "k", func(t *testing.T, c any) {
			if _, ok := c.(*groq.Client); !ok {
				t.Errorf("expected *groq.Client, got %T", c)
			}
		}},
		{config.ProviderOpenAI, "gpt-4o-mini", "k", func(t *testing.T, c any) {
			if _, ok := c.(*openaiofficial.OfficialClient); !ok {
				t.Errorf("expected *openaiofficial.OfficialClient, got %T", c)
			}
		}},
		{config.ProviderAnthropic, "claude-sonnet-4-5", "k", func(t *testing.T, c any) {
			if _, ok := c.(*anthropic.ClaudeClient); !ok {
				t.Errorf("expected *anthropic.ClaudeClient, got %T", c)
			}
		}},
		{config.ProviderGoogle, "gemini-2.5-flash", "k", func(t *testing.T, c any) {
			if _, ok := c.(*google.GeminiClient); !ok {
				t.Errorf("expected *google.GeminiClient, got %T", c)
			}
		}},
		{config.ProviderOllama, "ollama:llama3.1", "", func(t *testing.T, c any) {
			oc, ok := c.(*ollama.Client)
			if !ok {
				t.Fatalf("expected *ollama.Client, got %T", c)
			}
			if oc.GetModelName() != "llama3.1" {
				t.Errorf("expected ollama: prefix stripped, got %q", oc.GetModelName())
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			client, err := NewProviderClient(ClientSettings{Provider: tt.provider, Model: tt.model, APIKey: tt.apiKey})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, client)
		})
	}
}

func TestNewProviderClientErrors(t *testing.T) {
	if _, err := NewProviderClient(ClientSettings{Provider: config.ProviderGroq, Model: "llama"}); err == nil {
		t.Error("expected missing API key error")
	}
	if _, err := NewProviderClient(ClientSettings{Provider: "bedrock", Model: "x", APIKey: "k"}); err == nil {
		t.Error("expected unsupported provider error")
	}
	if _, err := NewProviderClient(ClientSettings{Provider: config.ProviderGroq, APIKey: "k"}); err == nil {
		t.Error("expected empty model error")
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Provider = config.ProviderGroq
	cfg.Timeout = 5 * time.Second
	cfg.Retry.TransientOnly = true
	cfg.CircuitBreaker.FailureThreshold = 4
	cfg.RateLimit.TokensPerMinute = 6000

	s := SettingsFromConfig(&cfg, "secret")
	if s.APIKey != "secret" || s.Model != config.DefaultModel || s.FallbackModel != config.DefaultFallbackModel {
		t.Errorf("unexpected settings: %+v", s)
	}
	if s.Retry.Delay != 1500*time.Millisecond || !s.TransientOnly || s.Timeout != 5*time.Second {
		t.Errorf("unexpected retry/timeout: %+v", s)
	}
	if !s.CircuitBreaker.Enabled() || s.CircuitBreaker.FailureThreshold != 4 {
		t.Errorf("unexpected breaker: %+v", s.CircuitBreaker)
	}
	if !s.RateLimit.Enabled() || s.RateLimit.TokensPerMinute != 6000 {
		t.Errorf("unexpected rate limit: %+v", s.RateLimit)
	}
}

func TestProviderDisplayName(t *testing.T) {
	if ProviderDisplayName(config.ProviderGroq) != "Groq" {
		t.Error("expected Groq")
	}
	if ProviderDisplayName("custom") != "custom" {
		t.Error("expected unknown providers to pass through")
	}
}

func TestFactoryCircuitBreakerShared(t *testing.T) {
	captureLogs(t)
	provider := newScriptedProvider("unused", primaryModel, fallbackModel)
	settings := testSettings()
	settings.CircuitBreaker.FailureThreshold = 1
	settings.CircuitBreaker.Timeout = time.Hour

	factory, err := NewFactory(settings, WithProviderClient(provider), WithSleeper((&recordedSleeps{}).sleep))
	if err != nil {
		t.Fatal(err)
	}
	a, _ := factory.NewChatClient(Config{Name: "A", MaxRetries: 1})
	b, _ := factory.NewChatClient(Config{Name: "B", MaxRetries: 1})

	if _, err := a.Send(t.Context(), messages(), 0.3, 10); err == nil {
		t.Fatal("expected failure")
	}
	calls := provider.calls()
	if _, err := b.Send(t.Context(), messages(), 0.3, 10); err == nil {
		t.Fatal("expected open circuit to reject")
	}
	if provider.calls() != calls {
		t.Errorf("expected no provider calls while open, got %d more", provider.calls()-calls)
	}
}

func TestFactoryRateLimitConsumesTokens(t *testing.T) {
	captureLogs(t)
	provider := newScriptedProvider("ok")
	settings := testSettings()

	factory, err := NewFactory(settings, WithProviderClient(provider))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := factory.RateLimitStats(); ok {
		t.Fatal("expected rate limiting disabled by default")
	}

	settings.RateLimit.TokensPerMinute = 100000
	factory, err = NewFactory(settings, WithProviderClient(provider))
	if err != nil {
		t.Fatal(err)
	}
	client, err := factory.NewChatClient(Config{Name: "A", MaxRetries: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Send(t.Context(), messages(), 0.3, 10); err != nil {
		t.Fatal(err)
	}

	stats, ok := factory.RateLimitStats()
	if !ok {
		t.Fatal("expected rate limiter")
	}
	if stats.AvailableTokens >= stats.MaxCapacity-10 || stats.ActiveRequests != 0 {
		t.Errorf("expected tokens consumed and slot released, got %+v", stats)
	}
}
