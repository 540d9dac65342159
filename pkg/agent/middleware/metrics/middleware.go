package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/agent/middleware/resilience/circuit"
	"researchagent/pkg/logx"
	"researchagent/pkg/utils"
)

// UsageExtractor returns token usage for a successful call.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and falls back to a
// tiktoken estimate over the normalized messages.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	promptTokens, completionTokens = resp.PromptTokens, resp.CompletionTokens

	if promptTokens == 0 {
		var sb strings.Builder
		for i := range req.Messages {
			sb.WriteString(req.Messages[i].Text())
			sb.WriteString("\n")
		}
		promptTokens = utils.CountTokensSimple(sb.String())
	}
	if completionTokens == 0 {
		completionTokens = utils.CountTokensSimple(resp.Content)
	}

	return promptTokens, completionTokens
}

// Middleware records one observation per call that passes through it. Placed
// outermost, it measures a whole send including every retry cycle.
func Middleware(recorder Recorder, agent string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				model := resp.Model
				if model == "" {
					model = req.ResolveModel(next.GetModelName())
				}

				status := StatusSuccess
				errorType := ""
				var promptTokens, completionTokens int
				if err != nil {
					status = StatusError
					errorType = ErrorLabel(err)
				} else {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(agent, model, status, errorType, duration, promptTokens, completionTokens)

				if logger != nil {
					logger.Debug("LLM call: model=%s tokens=%d+%d status=%s duration=%dms",
						model, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// ErrorLabel classifies errors for metrics labeling.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}

	var circuitErr *circuit.Error
	switch {
	case errors.As(err, &circuitErr):
		return "circuit_breaker"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded) && !llmerrors.IsRetriesExhausted(err):
		return "timeout"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
