// Package timeout provides per-attempt timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"researchagent/pkg/agent/llm"
)

// Middleware bounds every call that passes through it by duration.
// A zero or negative duration returns nil, which llm.Chain skips.
func Middleware(duration time.Duration) llm.Middleware {
	if duration <= 0 {
		return nil
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			next.GetModelName,
		)
	}
}
