// Package anthropic provides the Anthropic Claude client for the LLM interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient interface.
//
//nolint:govet // Simple client struct, logical grouping preferred
type ClaudeClient struct {
	client anthropic.Client
	model  string
}

// NewClaudeClient creates a Claude client for model. SDK-level retries are
// disabled; the agent's retry loop owns retrying.
func NewClaudeClient(apiKey, model, baseURL string, httpClient *http.Client) *ClaudeClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// turn is one normalized user or assistant message.
type turn struct {
	role llm.CompletionRole
	text string
}

// ensureAlternation prepares messages for Anthropic API requirements.
// 1. Extracts system messages to the top-level system parameter
// 2. Merges consecutive user messages into one
// 3. Requires strict user/assistant alternation starting and ending with user.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, turns []turn, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts, pending []string
	flush := func() {
		if len(pending) > 0 {
			turns = append(turns, turn{role: llm.RoleUser, text: strings.Join(pending, "\n\n")})
			pending = nil
		}
	}

	for i := range messages {
		text := messages[i].Text()
		switch messages[i].Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, text)
		case llm.RoleAssistant:
			flush()
			turns = append(turns, turn{role: llm.RoleAssistant, text: text})
		default:
			pending = append(pending, text)
		}
	}
	flush()

	if len(turns) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	for i := 1; i < len(turns); i++ {
		if turns[i].role == turns[i-1].role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, turns[i].role)
		}
	}
	if turns[0].role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", turns[0].role)
	}
	if last := turns[len(turns)-1]; last.role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.role)
	}

	return strings.Join(systemParts, "\n\n"), turns, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest is 80 bytes but passing by value matches interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	model := in.ResolveModel(c.model)

	systemPrompt, turns, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(t.role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(t.text)},
		})
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err, model)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var sb strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			sb.WriteString(resp.Content[i].AsText().Text)
		}
	}

	answered := string(resp.Model)
	if answered == "" {
		answered = model
	}
	return llm.CompletionResponse{
		Content:          sb.String(),
		Model:            answered,
		StopReason:       string(resp.StopReason),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return c.model
}

// classifyError maps Anthropic SDK errors to llmerrors types.
func classifyError(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("claude messages (%s): %w", model, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.StatusCode, err)
		e.Message = fmt.Sprintf("claude messages (%s) failed with status %d", model, apiErr.StatusCode)
		return e
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "overloaded"),
		strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "network or connection error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "unclassified error")
	}
}
