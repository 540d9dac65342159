package agent

import (
	"context"
	"fmt"

	"researchagent/pkg/agent/llm"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_sender.go -package=mocks researchagent/pkg/agent Sender

// Sender is the chat dependency of an agent. *ChatClient implements it.
type Sender interface {
	Send(ctx context.Context, messages []llm.CompletionMessage, temperature float32, maxTokens int) (string, error)
}

// Validator prompt and sampling settings.
const (
	validatorSystemPrompt = "You are an AI assistant that validates research articles for accuracy and academic quality."
	validatorTemperature  = llm.TemperatureValidation
	validatorMaxTokens    = 600
)

// ValidatorConfig returns the default validator configuration.
func ValidatorConfig() Config {
	return Config{
		Name:       ValidatorName,
		MaxRetries: DefaultMaxRetries,
		Verbose:    DefaultVerboseAgent,
	}
}

// ValidatorAgent asks a model to check a research article and rate it from 1 to 5.
type ValidatorAgent struct {
	sender Sender
}

// NewValidatorAgent creates a validator that talks through sender.
func NewValidatorAgent(sender Sender) *ValidatorAgent {
	return &ValidatorAgent{sender: sender}
}

// Execute validates article for topic and returns the model's text verbatim.
// Errors from the sender, including the terminal retries-exhausted error, are
// returned unchanged.
func (v *ValidatorAgent) Execute(ctx context.Context, topic, article string) (string, error) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(validatorSystemPrompt),
		llm.NewUserMessage(validationPrompt(topic, article)),
	}
	return v.sender.Send(ctx, messages, validatorTemperature, validatorMaxTokens) //nolint:wrapcheck // propagated unchanged
}

func validationPrompt(topic, article string) string {
	return fmt.Sprintf("Topic: %s\n\nArticle:\n%s\n\nValidate the article and rate it from 1 to 5:", topic, article)
}
