package toxicity

import "github.com/zhouzirui/safechat/backend/internal/model/chat"

// 审核原因。
const (
	ReasonClean          = ""
	ReasonToxicLanguage  = "toxic_language"
	ReasonSevereToxicity = "severe_toxicity"
)

// DefaultCensorText 替换被屏蔽消息的内容。
const DefaultCensorText = "[‼️ Message hidden due to inappropriate language]"

// Policy 把毒性得分映射为审核结论。
type Policy struct {
	CensorThreshold float64
	BlockThreshold  float64
	CensorText      string
}

// DefaultPolicy 使用 0.3 / 0.7 两档阈值。
func DefaultPolicy() Policy {
	return Policy{CensorThreshold: 0.3, BlockThreshold: 0.7, CensorText: DefaultCensorText}
}

// Decision 是单条消息的审核结论。
type Decision struct {
	Status        chat.Status
	ModeratedText string
	Reason        string
}

// Decide 低于 censor 阈值放行，低于 block 阈值替换文本，否则拦截。
// 只有 censored 会带 ModeratedText。
func (p Policy) Decide(toxicity float64) Decision {
	switch {
	case toxicity < p.CensorThreshold:
		return Decision{Status: chat.StatusApproved, Reason: ReasonClean}
	case toxicity < p.BlockThreshold:
		censor := p.CensorText
		if censor == "" {
			censor = DefaultCensorText
		}
		return Decision{Status: chat.StatusCensored, ModeratedText: censor, Reason: ReasonToxicLanguage}
	default:
		return Decision{Status: chat.StatusBlocked, Reason: ReasonSevereToxicity}
	}
}
