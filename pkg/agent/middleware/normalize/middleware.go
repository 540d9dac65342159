// Package normalize collapses structured message content to plain text before
// every attempt.
package normalize

import (
	"context"
	"fmt"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
)

// Middleware replaces each message's content with llm.Normalize(content) on
// every call. Structured content with no parts fails the attempt with a
// bad_prompt error. When logger is non-nil, discarded parts are reported at
// warn level.
func Middleware(logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				for i := range req.Messages {
					content := req.Messages[i].Content
					if llm.IsEmptyStructured(content) {
						return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt,
							fmt.Sprintf("message %d has structured content with no parts", i))
					}
					if dropped := llm.DroppedParts(content); dropped > 0 && logger != nil {
						logger.Warn("Message %d (%s): structured content has %d extra part(s); only the first is sent",
							i, req.Messages[i].Role, dropped)
					}
				}

				req.Messages = llm.NormalizeMessages(req.Messages)
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}
