package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/agent/middleware/resilience/circuit"
)

func stubClient(resp llm.CompletionResponse, err error) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return resp, err
		},
		func() string { return "llama-3.1-70b-versatile" },
	)
}

func testRequest() llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Rate this article")})
}

func TestPrometheusRecorderSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	client := llm.Chain(
		stubClient(llm.CompletionResponse{Content: "4/5", Model: "llama-3.1-8b-instant", PromptTokens: 12, CompletionTokens: 3}, nil),
		Middleware(rec, "ValidatorAgent", nil, nil),
	)
	if _, err := client.Complete(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := testutil.ToFloat64(rec.requestsTotal.WithLabelValues("ValidatorAgent", "llama-3.1-8b-instant", StatusSuccess, "")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
	if got := testutil.ToFloat64(rec.tokensTotal.WithLabelValues("ValidatorAgent", "llama-3.1-8b-instant", "prompt")); got != 12 {
		t.Errorf("expected 12 prompt tokens, got %v", got)
	}

	rec.IncFallback("ValidatorAgent", "primary", "fallback")
	rec.IncFailedCycle("ValidatorAgent")
	if got := testutil.ToFloat64(rec.fallbacksTotal.WithLabelValues("ValidatorAgent", "primary", "fallback")); got != 1 {
		t.Errorf("expected 1 fallback, got %v", got)
	}
	if got := testutil.ToFloat64(rec.failedCyclesTotal.WithLabelValues("ValidatorAgent")); got != 1 {
		t.Errorf("expected 1 failed cycle, got %v", got)
	}
}

func TestPrometheusRecorderError(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	terminal := llmerrors.NewRetriesExhaustedError("ValidatorAgent", "groq", 2, errors.New("down"))
	client := llm.Chain(stubClient(llm.CompletionResponse{}, terminal), Middleware(rec, "ValidatorAgent", nil, nil))
	if _, err := client.Complete(context.Background(), testRequest()); !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error to pass through, got %v", err)
	}

	got := testutil.ToFloat64(rec.requestsTotal.WithLabelValues("ValidatorAgent", "llama-3.1-70b-versatile", StatusError, "retries_exhausted"))
	if got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
	if n := testutil.CollectAndCount(rec.tokensTotal); n != 0 {
		t.Errorf("expected no token series on failure, got %d", n)
	}
}

func TestInternalRecorder(t *testing.T) {
	rec := NewInternalRecorder()
	rec.ObserveRequest("ValidatorAgent", "m", StatusSuccess, "", time.Second, 10, 5)
	rec.ObserveRequest("ValidatorAgent", "m", StatusError, "transient", time.Second, 0, 0)
	rec.IncFallback("ValidatorAgent", "a", "b")
	rec.IncFailedCycle("ValidatorAgent")

	m := rec.GetAgentMetrics("ValidatorAgent")
	if m == nil {
		t.Fatal("expected metrics for ValidatorAgent")
	}
	if m.RequestCount != 2 || m.FailureCount != 1 || m.FallbackCount != 1 || m.FailedCycles != 1 {
		t.Errorf("unexpected counts: %+v", m)
	}
	if m.PromptTokens != 10 || m.CompletionTokens != 5 {
		t.Errorf("unexpected tokens: %+v", m)
	}
	if m.TotalDuration != 2*time.Second {
		t.Errorf("unexpected duration: %v", m.TotalDuration)
	}

	m.RequestCount = 100
	if rec.GetAgentMetrics("ValidatorAgent").RequestCount != 2 {
		t.Error("GetAgentMetrics should return a copy")
	}
	if len(rec.GetAllAgentMetrics()) != 1 {
		t.Error("expected one agent")
	}

	rec.Reset()
	if rec.GetAgentMetrics("ValidatorAgent") != nil {
		t.Error("expected Reset to clear metrics")
	}
}

func TestMultiRecorder(t *testing.T) {
	a, b := NewInternalRecorder(), NewInternalRecorder()
	rec := Multi(a, nil, b)
	rec.IncFailedCycle("x")
	rec.IncFallback("x", "p", "f")
	rec.ObserveRequest("x", "m", StatusSuccess, "", 0, 1, 1)

	for _, r := range []*InternalRecorder{a, b} {
		m := r.GetAgentMetrics("x")
		if m == nil || m.FailedCycles != 1 || m.FallbackCount != 1 || m.RequestCount != 1 {
			t.Errorf("observation not fanned out: %+v", m)
		}
	}

	if _, ok := Multi().(*NoopRecorder); !ok {
		t.Error("empty Multi should be a no-op recorder")
	}
}

func TestDefaultUsageExtractorEstimates(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You are an AI assistant."),
		llm.NewUserMessage(strings.Repeat("word ", 50)),
	})
	prompt, completion := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "Rating: 4"})
	if prompt < 40 {
		t.Errorf("expected estimated prompt tokens, got %d", prompt)
	}
	if completion == 0 {
		t.Error("expected estimated completion tokens")
	}

	prompt, completion = DefaultUsageExtractor(req, llm.CompletionResponse{PromptTokens: 7, CompletionTokens: 2})
	if prompt != 7 || completion != 2 {
		t.Errorf("expected provider usage to win, got %d/%d", prompt, completion)
	}
}

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&circuit.Error{State: circuit.Open}, "circuit_breaker"},
		{fmt.Errorf("retry cancelled: %w", context.Canceled), "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{llmerrors.NewError(llmerrors.ErrorTypeAuth, "x"), "auth"},
		{errors.New("plain"), "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorLabel(tt.err); got != tt.want {
			t.Errorf("ErrorLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
