// Package openaiofficial provides the OpenAI client built on the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient interface.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClient creates an OpenAI chat-completions client for model.
// SDK-level retries are disabled; the agent's retry loop owns retrying.
func NewOfficialClient(apiKey, model, baseURL string, httpClient *http.Client) *OfficialClient {
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
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface using the Chat Completions API.
//
//nolint:gocritic // 80 bytes is reasonable for interface compliance
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	model := in.ResolveModel(o.model)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		text := in.Messages[i].Text()
		switch in.Messages[i].Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(float64(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classify(err, model)
	}
	if resp == nil || len(resp.Choices) == 0 {
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
		StopReason:       resp.Choices[0].FinishReason,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classify(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("openai chat completion (%s): %w", model, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.StatusCode, err)
		e.Message = fmt.Sprintf("openai chat completion (%s) failed with status %d", model, apiErr.StatusCode)
		return e
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err,
		fmt.Sprintf("openai chat completion (%s): %v", model, err))
}
