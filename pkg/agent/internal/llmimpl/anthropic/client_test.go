package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
)

// TestEnsureAlternation tests the message alternation logic.
func TestEnsureAlternation(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("You validate research articles"),
				llm.NewUserMessage("Topic: X"),
			},
			expectSystem: "You validate research articles",
			expectMsgLen: 1,
		},
		{
			name: "multiple system messages concatenated",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("You are helpful"),
				llm.NewSystemMessage("And concise"),
				llm.NewUserMessage("Hello"),
			},
			expectSystem: "You are helpful\n\nAnd concise",
			expectMsgLen: 1,
		},
		{
			name: "proper alternation maintained",
			input: []llm.CompletionMessage{
				llm.NewUserMessage("Hello"),
				llm.NewAssistantMessage("Hi"),
				llm.NewUserMessage("How are you?"),
			},
			expectMsgLen: 3,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				llm.NewUserMessage("Hello"),
				llm.NewUserMessage("Anyone there?"),
			},
			expectMsgLen: 1,
		},
		{
			name: "only system",
			input: []llm.CompletionMessage{
				llm.NewSystemMessage("sys"),
			},
			errContains: "at least one non-system message",
		},
		{
			name: "ends with assistant returns error",
			input: []llm.CompletionMessage{
				llm.NewUserMessage("Hello"),
				llm.NewAssistantMessage("Hi"),
			},
			errContains: "last message must be user",
		},
		{
			name: "starts with assistant returns error",
			input: []llm.CompletionMessage{
				llm.NewAssistantMessage("Hi"),
				llm.NewUserMessage("Hello"),
			},
			errContains: "first message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, turns, err := ensureAlternation(tt.input)

			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}
			if len(turns) != tt.expectMsgLen {
				t.Errorf("expected %d messages, got %d", tt.expectMsgLen, len(turns))
			}
		})
	}
}

// TestGetModelName tests model name retrieval.
func TestGetModelName(t *testing.T) {
	client := NewClaudeClient("test-key", "claude-sonnet-4-20250514", "", nil)
	if got := client.GetModelName(); got != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected model %q", got)
	}
	var _ llm.LLMClient = client
}

// TestComplete tests a round trip against a fake Messages endpoint.
func TestComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Rating: 5"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 30, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	client := NewClaudeClient("k", "claude-3-5-haiku-latest", srv.URL+"/", srv.Client())
	req := llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewSystemMessage("sys"), llm.NewUserMessage("rate")},
		Temperature: 0.3,
		MaxTokens:   600,
	}

	resp, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Rating: 5" || resp.StopReason != "end_turn" || resp.PromptTokens != 30 || resp.CompletionTokens != 4 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if body["max_tokens"] != float64(600) {
		t.Errorf("expected max_tokens 600, got %v", body["max_tokens"])
	}
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 1 {
		t.Errorf("expected system to be lifted out of messages, got %v", body["messages"])
	}
}

// TestCompleteBadAlternation tests that invalid sequences fail without a call.
func TestCompleteBadAlternation(t *testing.T) {
	client := NewClaudeClient("k", "m", "http://127.0.0.1:1/", nil)
	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.CompletionMessage{llm.NewUserMessage("a"), llm.NewAssistantMessage("b")},
	})
	if !llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
		t.Errorf("expected bad_prompt, got %v", err)
	}
}

// TestClassifyError tests classification of non-HTTP failures.
func TestClassifyError(t *testing.T) {
	if got := llmerrors.TypeOf(classifyError(errors.New("connection reset by peer"), "m")); got != llmerrors.ErrorTypeTransient {
		t.Errorf("expected transient, got %s", got)
	}
	if got := llmerrors.TypeOf(classifyError(errors.New("weird"), "m")); got != llmerrors.ErrorTypeUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
	if err := classifyError(context.Canceled, "m"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation to be preserved, got %v", err)
	}
}
