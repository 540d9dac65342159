package normalize

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
)

type capture struct {
	seen  [][]llm.CompletionMessage
	calls int
}

func (c *capture) client() llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			c.calls++
			c.seen = append(c.seen, req.Messages)
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func() string { return "m" },
	)
}

func TestStructuredContentCollapsedToFirstPart(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	defer logx.SetOutput(nil)

	c := &capture{}
	client := llm.Chain(c.client(), Middleware(logx.NewLogger("ValidatorAgent")))

	original := []llm.CompletionMessage{
		llm.NewSystemMessage("sys"),
		{Role: llm.RoleUser, Content: llm.StructuredParts{llm.TextPart("first"), llm.TextPart("second")}},
	}
	req := llm.NewCompletionRequest(original)

	// Two attempts through the same request: normalization runs on each.
	for i := 0; i < 2; i++ {
		if _, err := client.Complete(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, msgs := range c.seen {
		if msgs[0].Content != llm.PlainText("sys") {
			t.Errorf("plain content changed: %#v", msgs[0].Content)
		}
		if msgs[1].Content != llm.PlainText("first") {
			t.Errorf("expected first part, got %#v", msgs[1].Content)
		}
	}
	if _, ok := original[1].Content.(llm.StructuredParts); !ok {
		t.Error("caller messages were mutated")
	}
	if n := strings.Count(buf.String(), "only the first is sent"); n != 2 {
		t.Errorf("expected one warning per attempt, got %d:\n%s", n, buf.String())
	}
}

func TestPlainTextUnchanged(t *testing.T) {
	c := &capture{}
	client := llm.Chain(c.client(), Middleware(nil))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("already plain")})
	if _, err := client.Complete(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.seen[0][0].Content != llm.PlainText("already plain") {
		t.Errorf("plain text changed: %#v", c.seen[0][0].Content)
	}
}

func TestEmptyStructuredContentIsBadPrompt(t *testing.T) {
	c := &capture{}
	client := llm.Chain(c.client(), Middleware(nil))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{{Role: llm.RoleUser, Content: llm.StructuredParts{}}})
	_, err := client.Complete(context.Background(), req)
	if !llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt) {
		t.Fatalf("expected bad_prompt error, got %v", err)
	}
	if c.calls != 0 {
		t.Errorf("provider should not be called, got %d calls", c.calls)
	}
}
