package moderation

import (
	"context"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
)

// Scorer 为一段文本给出各维度毒性得分。
type Scorer interface {
	Name() string
	Score(ctx context.Context, text string) (toxicity.Scores, error)
}

// HeuristicScorer 使用本地关键词规则，永不失败。
type HeuristicScorer struct{}

func (HeuristicScorer) Name() string { return "heuristic" }

func (HeuristicScorer) Score(_ context.Context, text string) (toxicity.Scores, error) {
	return toxicity.Analyze(text), nil
}
