package chat

import "time"

// Status 是审核后的消息状态。
type Status string

const (
	StatusApproved Status = "approved"
	StatusCensored Status = "censored"
	StatusBlocked  Status = "blocked"
)

// Message persists every approved or censored chat line for audit/history.
type Message struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	ChatID   int     `gorm:"index" json:"chat_id"`
	Room     string  `gorm:"size:191;index" json:"room"`
	UserID   uint    `gorm:"index" json:"user_id"`
	Sender   string  `gorm:"size:191" json:"sender"`
	Content  string  `gorm:"type:text" json:"content"`
	Toxicity float64 `json:"toxicity"`
	Status   Status  `gorm:"size:16" json:"status"`
	// ModeratedText 仅在 censored 时有值。
	ModeratedText string    `gorm:"size:255" json:"moderated_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Chat groups messages under a numeric conversation id.
type Chat struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"size:191" json:"name"`
	IsGroup bool   `json:"is_group"`
}
