package moderation

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
)

type cannedChatModel struct {
	reply    string
	lastUser string
}

func (c *cannedChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	for _, msg := range input {
		if msg.Role == schema.User {
			c.lastUser = msg.Content
		}
	}
	return schema.AssistantMessage(c.reply, nil), nil
}

func (c *cannedChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(c.reply, nil)}), nil
}

func (c *cannedChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func TestLLMScorerParsesModelOutput(t *testing.T) {
	chatModel := &cannedChatModel{reply: "结果如下：{\"toxic\":0.2,\"threat\":0.85,\"insult\":0.3}"}
	scorer, err := NewLLMScorer(context.Background(), chatModel)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), "  meet me outside  ")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, scores.Toxicity(), 1e-9)
	assert.Equal(t, toxicity.Threat, scores.Dominant())
	assert.True(t, strings.Contains(chatModel.lastUser, "meet me outside"))
}

func TestNewLLMScorerRequiresModel(t *testing.T) {
	if _, err := NewLLMScorer(context.Background(), nil); err == nil {
		t.Fatal("expected error without chat model")
	}
}

func TestParseClassifierOutput(t *testing.T) {
	scores, err := parseClassifierOutput("```json\n{\"obscene\": 0.7, \"bogus\": 1}\n```")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, scores[toxicity.Obscene], 1e-9)

	for _, bad := range []string{"no json here", "{\"bogus\": 0.4}", "{not json}"} {
		if _, err := parseClassifierOutput(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
