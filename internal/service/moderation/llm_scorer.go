package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
)

// LLMScorer 让大模型按六个维度打分，适合没有部署 ML 服务的环境。
type LLMScorer struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMScorer 编译 prompt + chat model 链。
func NewLLMScorer(ctx context.Context, chatModel model.ChatModel) (*LLMScorer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(toxicitySystemPrompt),
		schema.UserMessage(toxicityUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile toxicity classifier chain: %w", err)
	}
	return &LLMScorer{classifier: runnable}, nil
}

func (s *LLMScorer) Name() string { return "llm" }

func (s *LLMScorer) Score(ctx context.Context, text string) (toxicity.Scores, error) {
	msg, err := s.classifier.Invoke(ctx, map[string]any{"message": strings.TrimSpace(text)})
	if err != nil {
		return nil, fmt.Errorf("classifier invoke: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("classifier returned empty output")
	}
	return parseClassifierOutput(msg.Content)
}

// parseClassifierOutput 从模型输出中截取 JSON 对象，容忍前后多余文本。
func parseClassifierOutput(content string) (toxicity.Scores, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	raw := map[string]float64{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &raw); err != nil {
		return nil, err
	}

	scores := toxicity.FromMap(raw)
	if len(scores) == 0 {
		return nil, fmt.Errorf("classifier output has no known labels")
	}
	return scores, nil
}

const toxicitySystemPrompt = "你是一名聊天内容审核员。请阅读用户消息，按以下六个维度评估其有害程度：toxic、severe_toxic、obscene、threat、insult、identity_hate。\n输出要求：只返回一个 JSON 对象，键为上述六个维度名，值为 0~1 之间的小数，表示该维度成立的概率。不得输出多余文本。"

const toxicityUserPrompt = "待审核消息：\n{message}\n\n请给出 JSON。"
