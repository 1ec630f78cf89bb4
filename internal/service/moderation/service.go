package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
	"github.com/zhouzirui/safechat/backend/internal/model/chat"
)

// Emitter 发布审核审计事件，通常由 RabbitMQ 实现。
type Emitter interface {
	Emit(ctx context.Context, routingKey string, payload any) error
}

// Result 是一条消息经过审核管线后的完整结论。
type Result struct {
	User          string          `json:"user"`
	Message       string          `json:"message"`
	Toxicity      float64         `json:"toxicity"`
	Scores        toxicity.Scores `json:"scores"`
	Status        chat.Status     `json:"status"`
	ModeratedText string          `json:"moderated_text"`
	Reason        string          `json:"reason"`
	Source        string          `json:"source"`
	Risk          float64         `json:"risk"`
}

// Blocked 表示消息不得持久化或广播。
func (r Result) Blocked() bool {
	return r.Status == chat.StatusBlocked
}

// Event 是发往消息队列的审计记录。
type Event struct {
	Type      string          `json:"type"`
	User      string          `json:"user"`
	Toxicity  float64         `json:"toxicity"`
	Scores    toxicity.Scores `json:"scores"`
	Status    chat.Status     `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Source    string          `json:"source"`
	Risk      float64         `json:"risk"`
	Timestamp time.Time       `json:"timestamp"`
}

// Option 调整 Service 的依赖。
type Option func(*Service)

// WithScorers 按优先顺序设置打分器，全部失败时回退到启发式规则。
func WithScorers(scorers ...Scorer) Option {
	return func(s *Service) {
		for _, sc := range scorers {
			if sc != nil {
				s.scorers = append(s.scorers, sc)
			}
		}
	}
}

// WithRiskStore 替换默认的内存风险存储。
func WithRiskStore(store RiskStore) Option {
	return func(s *Service) {
		if store != nil {
			s.risk = store
		}
	}
}

// WithEmitter 设置审计事件发布者。
func WithEmitter(emitter Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// Service 串联打分、阈值判定、风险累计与事件发布。
type Service struct {
	scorers  []Scorer
	fallback Scorer
	policy   toxicity.Policy
	risk     RiskStore
	emitter  Emitter
}

// NewService 创建审核服务。
func NewService(policy toxicity.Policy, opts ...Option) *Service {
	svc := &Service{
		fallback: HeuristicScorer{},
		policy:   policy,
		risk:     NewMemoryRiskStore(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Policy 返回当前阈值配置。
func (s *Service) Policy() toxicity.Policy {
	return s.policy
}

// Risk 返回用户累计风险值。
func (s *Service) Risk(ctx context.Context, user string) (float64, error) {
	return s.risk.Get(ctx, user)
}

// Moderate 为 user 发送的 text 给出审核结论。
func (s *Service) Moderate(ctx context.Context, user, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	scores, source := s.score(ctx, text)
	score := scores.Toxicity()
	decision := s.policy.Decide(score)

	risk, err := s.risk.Add(ctx, user, score)
	if err != nil {
		log.Warn().Err(err).Str("user", user).Msg("[moderation] risk update failed")
	}

	result := Result{
		User:          user,
		Message:       text,
		Toxicity:      score,
		Scores:        scores,
		Status:        decision.Status,
		ModeratedText: decision.ModeratedText,
		Reason:        decision.Reason,
		Source:        source,
		Risk:          risk,
	}

	s.emit(ctx, result)

	log.Debug().
		Str("user", user).
		Float64("toxicity", score).
		Str("status", string(result.Status)).
		Str("source", source).
		Msg("[moderation] message scored")

	return result, nil
}

func (s *Service) score(ctx context.Context, text string) (toxicity.Scores, string) {
	for _, scorer := range s.scorers {
		scores, err := scorer.Score(ctx, text)
		if err != nil {
			log.Warn().Err(err).Str("scorer", scorer.Name()).Msg("[moderation] scorer failed, trying next")
			continue
		}
		return scores, scorer.Name()
	}

	scores, _ := s.fallback.Score(ctx, text)
	return scores, s.fallback.Name()
}

func (s *Service) emit(ctx context.Context, result Result) {
	if s.emitter == nil {
		return
	}

	event := Event{
		Type:      "moderation." + string(result.Status),
		User:      result.User,
		Toxicity:  result.Toxicity,
		Scores:    result.Scores,
		Status:    result.Status,
		Reason:    result.Reason,
		Source:    result.Source,
		Risk:      result.Risk,
		Timestamp: time.Now().UTC(),
	}
	if err := s.emitter.Emit(ctx, event.Type, event); err != nil {
		log.Warn().Err(err).Str("event", event.Type).Msg("[moderation] publish failed")
	}
}
