package realtime

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/model/chat"
	"github.com/zhouzirui/safechat/backend/internal/service/auth"
	chatservice "github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

// BlockedNotice 是消息被拦截时发给发送者的提示。
const BlockedNotice = "‼️ Your message was blocked due to toxic content"

func (h *Hub) dispatch(c *Client, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		h.emitError(c, "malformed frame")
		return
	}

	handler, ok := h.handlers[env.Event]
	if !ok {
		h.emitError(c, fmt.Sprintf("unknown event %q", env.Event))
		return
	}

	ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.EventTimeout)
	defer cancel()
	handler(ctx, c, env)
}

func (h *Hub) emitError(c *Client, message string) {
	h.emitTo(c, protocol.EventError, protocol.ErrorPayload{Message: message})
}

func bindRoom(env protocol.Envelope) (string, error) {
	var payload protocol.RoomPayload
	if err := env.Bind(&payload); err != nil {
		return "", err
	}
	room := strings.TrimSpace(payload.Room)
	if room == "" {
		return "", fmt.Errorf("room is required")
	}
	return room, nil
}

func (h *Hub) onJoinRoom(ctx context.Context, c *Client, env protocol.Envelope) {
	room, err := bindRoom(env)
	if err != nil {
		h.emitError(c, err.Error())
		return
	}

	if h.deps.Messages != nil {
		allowed, err := h.deps.Messages.CanAccess(ctx, room, c.user.UserID, c.user.Email)
		if err != nil {
			log.Error().Err(err).Str("room", room).Msg("[realtime] access check failed")
			h.emitError(c, "could not join room")
			return
		}
		if !allowed {
			h.emitError(c, fmt.Sprintf("not allowed to join room %s", room))
			return
		}
	}

	h.join(c, room)
	h.emitRoom(ctx, room, protocol.EventSystem, protocol.SystemPayload{
		Message: fmt.Sprintf("%s joined the room", c.user.Email),
		Room:    room,
	}, nil)
}

func (h *Hub) onLeaveRoom(ctx context.Context, c *Client, env protocol.Envelope) {
	room, err := bindRoom(env)
	if err != nil {
		h.emitError(c, err.Error())
		return
	}

	if !h.leave(c, room) {
		return
	}
	h.emitRoom(ctx, room, protocol.EventSystem, protocol.SystemPayload{
		Message: fmt.Sprintf("%s left the room", c.user.Email),
		Room:    room,
	}, nil)
}

func (h *Hub) onTyping(ctx context.Context, c *Client, env protocol.Envelope) {
	room, err := bindRoom(env)
	if err != nil || !h.inRoom(c, room) {
		return
	}
	h.emitRoom(ctx, room, protocol.EventTyping, protocol.TypingPayload{User: c.user.Email, Room: room}, c)
}

func (h *Hub) onStartPrivateChat(_ context.Context, c *Client, env protocol.Envelope) {
	var payload protocol.StartPrivateChatPayload
	if err := env.Bind(&payload); err != nil {
		h.emitError(c, err.Error())
		return
	}

	target := auth.NormalizeEmail(payload.TargetUser)
	if target == "" {
		h.emitError(c, "target_user is required")
		return
	}
	if target == auth.NormalizeEmail(c.user.Email) {
		h.emitError(c, "cannot start a private chat with yourself")
		return
	}

	room := chatservice.PrivateRoomName(c.user.Email, target)
	h.join(c, room)
	h.emitTo(c, protocol.EventPrivateRoomCreated, protocol.PrivateRoomCreatedPayload{Room: room, With: target})

	log.Debug().Str("user", c.user.Email).Str("with", target).Str("room", room).Msg("[realtime] private room")
}

func (h *Hub) onChatMessage(ctx context.Context, c *Client, env protocol.Envelope) {
	var payload protocol.ChatMessagePayload
	if err := env.Bind(&payload); err != nil {
		h.emitError(c, err.Error())
		return
	}

	room := strings.TrimSpace(payload.Room)
	text := strings.TrimSpace(payload.Message)
	switch {
	case room == "":
		h.emitError(c, "room is required")
		return
	case text == "":
		h.emitError(c, "message is empty")
		return
	case utf8.RuneCountInString(text) > h.cfg.MaxMessageLen:
		h.emitError(c, fmt.Sprintf("message exceeds %d characters", h.cfg.MaxMessageLen))
		return
	case !h.inRoom(c, room):
		h.emitError(c, fmt.Sprintf("join room %s before sending messages", room))
		return
	}

	result, err := h.deps.Moderator.Moderate(ctx, c.user.Email, text)
	if err != nil {
		log.Error().Err(err).Str("user", c.user.Email).Msg("[realtime] moderation failed")
		h.emitError(c, "moderation unavailable, message not sent")
		return
	}

	if result.Blocked() {
		h.emitTo(c, protocol.EventModerationNotice, protocol.ModerationNoticePayload{
			Message:  BlockedNotice,
			Toxicity: result.Toxicity,
		})
		h.emitTo(c, protocol.EventToxicityUpdate, protocol.ToxicityUpdatePayload{Toxicity: result.Toxicity})
		log.Info().Str("user", c.user.Email).Str("room", room).Float64("toxicity", result.Toxicity).Msg("[realtime] message blocked")
		return
	}

	chatID := payload.ChatID
	if chatID == 0 {
		chatID = protocol.DefaultChatID
	}
	stored := chat.Message{
		ChatID:        chatID,
		Room:          room,
		UserID:        c.user.UserID,
		Sender:        c.user.Email,
		Content:       text,
		Toxicity:      result.Toxicity,
		Status:        result.Status,
		ModeratedText: result.ModeratedText,
	}
	if h.deps.Messages != nil {
		saved, err := h.deps.Messages.SaveMessage(ctx, stored)
		if err != nil {
			log.Error().Err(err).Str("user", c.user.Email).Str("room", room).Msg("[realtime] persist message failed")
		} else {
			stored = saved
		}
	}

	h.emitTo(c, protocol.EventToxicityUpdate, protocol.ToxicityUpdatePayload{Toxicity: result.Toxicity})
	h.emitRoom(ctx, room, protocol.EventNewMessage, protocol.NewMessagePayload{
		User:          c.user.Email,
		Message:       text,
		Toxicity:      result.Toxicity,
		Status:        string(result.Status),
		ModeratedText: result.ModeratedText,
		Room:          room,
		CreatedAt:     stored.CreatedAt,
	}, nil)
}
