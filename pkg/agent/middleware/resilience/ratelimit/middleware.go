package ratelimit

import (
	"context"

	"researchagent/pkg/agent/llm"
)

// Middleware acquires prompt plus max-output tokens from limiter before each
// provider call and holds a concurrency slot until the call returns.
func Middleware(limiter *Limiter, estimator TokenEstimator) llm.Middleware {
	if limiter == nil {
		return nil
	}
	if estimator == nil {
		estimator = DefaultTokenEstimator{}
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				release, err := limiter.Acquire(ctx, estimator.EstimatePrompt(req)+req.MaxTokens)
				if err != nil {
					return llm.CompletionResponse{}, err
				}
				defer release()

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
