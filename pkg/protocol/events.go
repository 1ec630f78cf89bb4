// Package protocol 定义实时通道上传输的事件名称与负载结构，服务端与客户端 SDK 共用。
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 服务端推送给客户端的事件。
const (
	EventConnect            = "connect"
	EventNewMessage         = "new_message"
	EventModerationNotice   = "moderation_notice"
	EventToxicityUpdate     = "toxicity_update"
	EventTyping             = "typing"
	EventOnlineUsers        = "online_users"
	EventSystem             = "system"
	EventPrivateRoomCreated = "private_room_created"
	EventError              = "error"
)

// 客户端发往服务端的事件。typing 在两个方向上同名。
const (
	EventJoinRoom         = "join_room"
	EventLeaveRoom        = "leave_room"
	EventChatMessage      = "chat_message"
	EventStartPrivateChat = "start_private_chat"
)

// DefaultChatID 是客户端未提供 chat_id 时使用的会话编号。
const DefaultChatID = 1

// ErrMissingEvent 表示帧中缺少事件名。
var ErrMissingEvent = errors.New("frame has no event name")

// Envelope 是通道上每一帧的外层结构。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bind 将 Data 解码到 v。
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Event, err)
	}
	return nil
}

// Encode 生成一帧 JSON。
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Decode 解析一帧 JSON。
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	env.Event = strings.TrimSpace(env.Event)
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// RoomPayload 用于 join_room / leave_room / 客户端 typing。
type RoomPayload struct {
	Room string `json:"room"`
}

// ChatMessagePayload 是客户端发送的聊天内容。
type ChatMessagePayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
	ChatID  int    `json:"chat_id,omitempty"`
}

// StartPrivateChatPayload 请求与另一位用户建立私聊房间。
type StartPrivateChatPayload struct {
	TargetUser string `json:"target_user"`
}

// ConnectPayload 在认证成功后发送一次。
type ConnectPayload struct {
	SID  string `json:"sid"`
	User string `json:"user"`
}

// NewMessagePayload 是广播到房间的已审核消息。
type NewMessagePayload struct {
	User          string    `json:"user"`
	Message       string    `json:"message"`
	Toxicity      float64   `json:"toxicity"`
	Status        string    `json:"status"`
	ModeratedText string    `json:"moderated_text"`
	Room          string    `json:"room,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ModerationNoticePayload 仅发给被拦截消息的发送者。
type ModerationNoticePayload struct {
	Message  string  `json:"message"`
	Toxicity float64 `json:"toxicity"`
}

// ToxicityUpdatePayload 携带发送者最近一条消息的毒性得分。
type ToxicityUpdatePayload struct {
	Toxicity float64 `json:"toxicity"`
}

// TypingPayload 通知房间内其他成员某人正在输入。
type TypingPayload struct {
	User string `json:"user"`
	Room string `json:"room,omitempty"`
}

// SystemPayload 是房间内的系统提示。
type SystemPayload struct {
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

// PrivateRoomCreatedPayload 告诉发起者私聊房间的名称。
type PrivateRoomCreatedPayload struct {
	Room string `json:"room"`
	With string `json:"with"`
}

// ErrorPayload 描述被拒绝的请求。
type ErrorPayload struct {
	Message string `json:"message"`
}
