package agent

import (
	"context"
	"fmt"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks researchagent/pkg/agent/llm LLMClient

// ChatClient sends chat requests for one agent through a fully assembled
// middleware chain and returns the first choice's text.
type ChatClient struct {
	client llm.LLMClient
	logger *logx.Logger
	config Config
}

// NewChatClient wraps an already chained client. Most callers use
// Factory.NewChatClient instead.
func NewChatClient(cfg Config, client llm.LLMClient, logger *logx.Logger) *ChatClient {
	if logger == nil {
		logger = logx.NewLogger(cfg.Name)
	}
	return &ChatClient{
		client: client,
		logger: logger,
		config: cfg,
	}
}

// Config returns the agent configuration.
func (c *ChatClient) Config() Config {
	return c.config
}

// Model returns the primary model id.
func (c *ChatClient) Model() string {
	return c.client.GetModelName()
}

// Send issues one logical chat request. The caller's messages are not
// modified. Failures are retried by the chain; once every cycle has failed the
// error satisfies llmerrors.IsRetriesExhausted.
func (c *ChatClient) Send(ctx context.Context, messages []llm.CompletionMessage, temperature float32, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("[%s] no messages to send", c.config.Name))
	}

	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if err := req.Validate(); err != nil {
		return "", llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, fmt.Sprintf("[%s] invalid request", c.config.Name))
	}

	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", err //nolint:wrapcheck // terminal error already names the agent
	}
	return resp.Content, nil
}
