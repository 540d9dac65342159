package circuit

import (
	"context"
	"errors"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/logx"
)

// Middleware rejects calls immediately while the circuit is OPEN. It sits
// outside the retry loop, so one recorded result covers a whole call including
// all of its retry cycles. Cancelled calls are not recorded.
func Middleware(breaker Breaker, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}

				before := breaker.GetState()
				resp, err := next.Complete(ctx, req)
				if errors.Is(err, context.Canceled) {
					return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}
				breaker.Record(err == nil)

				if after := breaker.GetState(); after != before && logger != nil {
					logger.Warn("Circuit breaker %s -> %s", before, after)
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
