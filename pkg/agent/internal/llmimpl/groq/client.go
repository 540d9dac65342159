// Package groq provides the Groq chat-completion client. Groq serves an
// OpenAI-compatible API, so the client is built on go-openai with Groq's base URL.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Client wraps the go-openai client to implement llm.LLMClient against Groq.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a Groq client for model. An empty baseURL uses DefaultBaseURL.
// A nil httpClient uses http.DefaultClient.
func NewClient(apiKey, model, baseURL string, httpClient *http.Client) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = DefaultBaseURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	model := in.ResolveModel(c.model)

	messages := make([]openai.ChatCompletionMessage, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Text(),
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	})
	if err != nil {
		return llm.CompletionResponse{}, classify(err, model)
	}

	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			fmt.Sprintf("no choices returned by %s", model))
	}

	answered := resp.Model
	if answered == "" {
		answered = model
	}
	return llm.CompletionResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            answered,
		StopReason:       string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GetModelName returns the default model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

func classify(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("groq chat completion (%s): %w", model, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.HTTPStatusCode, err)
		e.Message = fmt.Sprintf("groq chat completion (%s): %s", model, apiErr.Message)
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := llmerrors.FromStatus(reqErr.HTTPStatusCode, err)
		e.Message = fmt.Sprintf("groq chat completion (%s) failed with status %d", model, reqErr.HTTPStatusCode)
		return e
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err,
		fmt.Sprintf("groq chat completion (%s): %v", model, err))
}
