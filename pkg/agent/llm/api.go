// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r CompletionRole) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

const (
	// DefaultMaxTokens is used when a request does not set MaxTokens.
	DefaultMaxTokens = 1024

	// TemperatureDefault is the temperature applied when a caller does not choose one.
	TemperatureDefault = 0.7

	// TemperatureValidation is the low temperature used for judgment tasks such as
	// article validation.
	TemperatureValidation = 0.3
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content Content
	Role    CompletionRole
}

// Text returns the message content as plain text, normalizing structured content.
func (m CompletionMessage) Text() string {
	return string(Normalize(m.Content))
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	Model       string // Empty means the client's default model
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionResponse struct {
	Content          string // Text of the first choice
	Model            string // Model that produced the response
	StopReason       string
	PromptTokens     int
	CompletionTokens int
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for backward compatibility
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the default model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: PlainText(content),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: PlainText(content),
	}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleAssistant,
		Content: PlainText(content),
	}
}

// ResolveModel returns the request model, or def when the request leaves it empty.
func (r *CompletionRequest) ResolveModel(def string) string {
	if r.Model != "" {
		return r.Model
	}
	return def
}

// Validate checks the request shape before it is sent to a provider.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("message list cannot be empty")
	}
	for i := range r.Messages {
		if !r.Messages[i].Role.Valid() {
			return fmt.Errorf("message %d has unknown role %q", i, r.Messages[i].Role)
		}
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative")
	}
	return nil
}
