package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/agent/mocks"
)

func TestValidatorConfigDefaults(t *testing.T) {
	cfg := ValidatorConfig()
	if cfg.Name != "ValidatorAgent" || cfg.MaxRetries != 2 || !cfg.Verbose {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidatorExecuteBuildsPrompt(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	topic := "Climate Change"
	article := "Global temperatures have risen.\nSecond line."

	sender.EXPECT().
		Send(gomock.Any(), gomock.Any(), float32(0.3), 600).
		DoAndReturn(func(_ context.Context, msgs []llm.CompletionMessage, _ float32, _ int) (string, error) {
			require.Len(t, msgs, 2)
			require.Equal(t, llm.RoleSystem, msgs[0].Role)
			require.Equal(t, "You are an AI assistant that validates research articles for accuracy and academic quality.", msgs[0].Text())
			require.Equal(t, llm.RoleUser, msgs[1].Role)
			require.Equal(t,
				"Topic: Climate Change\n\nArticle:\nGlobal temperatures have risen.\nSecond line.\n\nValidate the article and rate it from 1 to 5:",
				msgs[1].Text())
			return "Rating: 4. Mostly accurate.", nil
		})

	got, err := NewValidatorAgent(sender).Execute(context.Background(), topic, article)
	require.NoError(t, err)
	require.Equal(t, "Rating: 4. Mostly accurate.", got)
}

func TestValidatorExecuteEmbedsVerbatim(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	topic := "  50% of {braces} & <tags>  "
	article := ""

	var userText string
	sender.EXPECT().
		Send(gomock.Any(), gomock.Len(2), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llm.CompletionMessage, _ float32, _ int) (string, error) {
			userText = msgs[1].Text()
			return "", nil
		})

	got, err := NewValidatorAgent(sender).Execute(context.Background(), topic, article)
	require.NoError(t, err)
	require.Empty(t, got)
	require.True(t, strings.HasPrefix(userText, "Topic: "+topic+"\n\nArticle:\n\n\n"))
}

func TestValidatorPropagatesTerminalError(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)

	terminal := llmerrors.NewRetriesExhaustedError("ValidatorAgent", "Groq", 2, llmerrors.NewError(llmerrors.ErrorTypeTransient, "down"))
	sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", terminal)

	_, err := NewValidatorAgent(sender).Execute(context.Background(), "t", "a")
	require.Same(t, terminal, err)
}

func TestValidatorOverChatClient(t *testing.T) {
	captureLogs(t)
	provider := newScriptedProvider("Rating: 3", primaryModel)
	client := newTestClient(t, provider, ValidatorConfig(), &recordedSleeps{}, nil)

	got, err := NewValidatorAgent(client).Execute(context.Background(), "Go", "Go is a language.")
	require.NoError(t, err)
	require.Equal(t, "Rating: 3", got)
	require.Equal(t, []string{primaryModel, fallbackModel}, provider.models)
}
