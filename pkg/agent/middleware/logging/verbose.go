// Package logging provides request/response logging middleware for LLM clients.
package logging

import (
	"context"

	"github.com/google/uuid"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
	"researchagent/pkg/utils"
)

// maxLoggedChars bounds each message body written at debug level.
const maxLoggedChars = 4000

// VerboseMiddleware logs every attempt that passes through it: an info line
// when messages are sent, each message body at debug level, and an info line
// when the provider answers. Failures are left to the retry loop to report.
func VerboseMiddleware(logger *logx.Logger, provider string) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				requestID := uuid.NewString()
				logger.Info("Sending messages to %s (request %s)", provider, requestID)
				if logx.IsDebugEnabled() {
					for i := range req.Messages {
						text := req.Messages[i].Text()
						logger.Debug("  %s: %s", req.Messages[i].Role, llmerrors.SanitizePrompt(text, maxLoggedChars))
					}
					logger.Debug("  ~%d prompt tokens, temperature=%.2f max_tokens=%d", promptTokens(req), req.Temperature, req.MaxTokens)
				}

				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
				}

				logger.Info("%s response received successfully (request %s, model %s)", provider, requestID, resp.Model)
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func promptTokens(req llm.CompletionRequest) int {
	total := 0
	for i := range req.Messages {
		total += utils.CountTokensSimple(req.Messages[i].Text())
	}
	return total
}
