// Package google provides Google Gemini client implementation for LLM interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient interface.
type GeminiClient struct {
	httpClient *http.Client
	client     *genai.Client
	apiKey     string
	model      string
	baseURL    string
	mu         sync.Mutex
}

// NewGeminiClientWithModel creates a new Gemini client with specific model (raw client, middleware applied at higher level).
// The underlying genai client needs a context, so it is created on first use.
func NewGeminiClientWithModel(apiKey, model, baseURL string, httpClient *http.Client) *GeminiClient {
	return &GeminiClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

func (g *GeminiClient) genaiClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions.BaseURL = g.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by caller
	}
	g.client = client
	return client, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}

	contents, systemInstruction, err := convertMessagesToGemini(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(in.Temperature),
	}
	if in.MaxTokens > 0 {
		//nolint:gosec // MaxTokens validated at higher layer
		config.MaxOutputTokens = int32(in.MaxTokens)
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	model := in.ResolveModel(g.model)
	result, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err, model)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		Model:      model,
		StopReason: getStopReason(result),
	}
	if result.ModelVersion != "" {
		response.Model = result.ModelVersion
	}
	if usage := result.UsageMetadata; usage != nil {
		response.PromptTokens = int(usage.PromptTokenCount)
		response.CompletionTokens = int(usage.CandidatesTokenCount)
	}
	return response, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessagesToGemini splits system messages into the system instruction
// and maps the rest onto Gemini's user/model roles.
func convertMessagesToGemini(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		var role genai.Role
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Text())
			continue
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		contents = append(contents, genai.NewContentFromText(msg.Text(), role))
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, strings.Join(systemParts, "\n\n"), nil
}

// getStopReason extracts the stop reason from Gemini response.
func getStopReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return "unknown"
	}

	switch reason := result.Candidates[0].FinishReason; reason {
	case genai.FinishReasonStop, "":
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return strings.ToLower(string(reason))
	}
}

func classifyError(err error, model string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("gemini generate (%s): %w", model, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		e := llmerrors.FromStatus(apiErr.Code, err)
		e.Message = fmt.Sprintf("gemini generate (%s) failed with status %d: %s", model, apiErr.Code, apiErr.Message)
		return e
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		e := llmerrors.FromStatus(apiErrPtr.Code, err)
		e.Message = fmt.Sprintf("gemini generate (%s) failed with status %d: %s", model, apiErrPtr.Code, apiErrPtr.Message)
		return e
	}

	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, fmt.Sprintf("gemini generate (%s) failed", model))
}
