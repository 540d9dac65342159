package logging

import (
	"context"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
)

// maxDumpChars bounds each message in the empty-response dump.
const maxDumpChars = 10000

// EmptyResponseLoggingMiddleware dumps the request at error level whenever a
// provider returns no choices, then passes the error through unchanged.
func EmptyResponseLoggingMiddleware(logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)

				if err != nil && llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
					logEmptyResponseDebugInfo(logger, req)
				}

				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			next.GetModelName,
		)
	}
}

//nolint:gocritic // 80 bytes is reasonable for logging function
func logEmptyResponseDebugInfo(logger *logx.Logger, req llm.CompletionRequest) {
	logger.Error("Empty response from model %s. Request follows:", req.Model)

	for i := range req.Messages {
		content := req.Messages[i].Text()
		if len(content) > maxDumpChars {
			content = content[:maxDumpChars] + "\n[... truncated ...]"
		}
		logger.Error("Message [%d] Role: %s, Content: %s", i, req.Messages[i].Role, content)
	}

	logger.Error("  - Temperature: %v", req.Temperature)
	logger.Error("  - Max Tokens: %d", req.MaxTokens)
}
