package toxicity

import (
	"sort"
	"strings"
	"unicode"
)

// Label 是毒性分类器输出的维度，与外部 ML 服务保持一致。
type Label string

const (
	Toxic        Label = "toxic"
	SevereToxic  Label = "severe_toxic"
	Obscene      Label = "obscene"
	Threat       Label = "threat"
	Insult       Label = "insult"
	IdentityHate Label = "identity_hate"
)

// Labels 按固定顺序列出全部维度。
var Labels = []Label{Toxic, SevereToxic, Obscene, Threat, Insult, IdentityHate}

// Scores 保存各维度的概率，取值范围 [0,1]。
type Scores map[Label]float64

// Toxicity 返回所有维度中的最大值，作为整条消息的毒性得分。
func (s Scores) Toxicity() float64 {
	best := 0.0
	for _, v := range s {
		if v > best {
			best = v
		}
	}
	return clamp(best)
}

// Dominant 返回得分最高的维度，全部为 0 时返回空字符串。
func (s Scores) Dominant() Label {
	var (
		best  Label
		score float64
	)
	for _, label := range Labels {
		if v := s[label]; v > score {
			best, score = label, v
		}
	}
	return best
}

// FromMap 把 ML 服务返回的 map[string]float64 转为 Scores，忽略未知维度。
func FromMap(raw map[string]float64) Scores {
	scores := make(Scores, len(Labels))
	known := make(map[Label]bool, len(Labels))
	for _, label := range Labels {
		known[label] = true
	}
	for key, v := range raw {
		label := Label(strings.ToLower(strings.TrimSpace(key)))
		if known[label] {
			scores[label] = clamp(v)
		}
	}
	return scores
}

type bucket struct {
	weight float64
	terms  []string
}

var keywordBuckets = map[Label]bucket{
	Toxic: {weight: 0.45, terms: []string{
		"stupid", "idiot", "dumb", "moron", "loser", "shut up", "trash", "sucks", "pathetic",
		"worthless", "garbage", "hate you", "disgusting", "get lost", "nobody likes you",
	}},
	SevereToxic: {weight: 0.8, terms: []string{
		"kill yourself", "kys", "go die", "die in a fire", "hope you die", "drop dead",
	}},
	Obscene: {weight: 0.5, terms: []string{
		"fuck", "fucking", "shit", "bitch", "bastard", "asshole", "crap", "dick", "piss off", "wtf",
	}},
	Threat: {weight: 0.75, terms: []string{
		"i will kill", "kill you", "hurt you", "beat you up", "shoot you", "you're dead", "youre dead",
		"watch your back", "find where you live", "i'll find you",
	}},
	Insult: {weight: 0.4, terms: []string{
		"idiot", "moron", "stupid", "loser", "ugly", "clown", "pathetic", "worthless", "fool", "jerk",
	}},
	IdentityHate: {weight: 0.75, terms: []string{
		"go back to your country", "your kind", "you people are", "subhuman", "inferior race",
	}},
}

// Analyze 使用关键词启发式估计各维度得分，在 ML 服务与大模型都不可用时兜底。
func Analyze(text string) Scores {
	scores := make(Scores, len(Labels))
	for _, label := range Labels {
		scores[label] = 0
	}

	normalized := normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return scores
	}

	for label, b := range keywordBuckets {
		hits := 0
		for _, term := range b.terms {
			if strings.Contains(normalized, " "+term+" ") {
				hits++
			}
		}
		scores[label] = clamp(float64(hits) * b.weight)
	}

	if scores.Toxicity() == 0 {
		return scores
	}

	// 全大写与连续感叹号会放大已有的攻击性。
	boost := 0.0
	if isShouting(text) {
		boost += 0.1
	}
	if n := strings.Count(text, "!"); n >= 2 {
		boost += minFloat(0.15, 0.05*float64(n-1))
	}
	scores[Toxic] = clamp(scores[Toxic] + boost)

	return scores
}

// normalize 小写化并将标点替换为空格，首尾补空格以便按整词匹配。
func normalize(text string) string {
	var builder strings.Builder
	builder.Grow(len(text) + 2)
	builder.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			builder.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			builder.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		builder.WriteByte(' ')
	}
	return builder.String()
}

func isShouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 5 && float64(upper)/float64(letters) >= 0.8
}

// SortedLabels 返回 s 中出现的维度，按得分降序。
func SortedLabels(s Scores) []Label {
	labels := make([]Label, 0, len(s))
	for label := range s {
		labels = append(labels, label)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		if s[labels[i]] == s[labels[j]] {
			return labels[i] < labels[j]
		}
		return s[labels[i]] > s[labels[j]]
	})
	return labels
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
