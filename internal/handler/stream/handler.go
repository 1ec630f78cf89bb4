package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/middleware"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// RoomTap 提供房间事件的旁路订阅。
type RoomTap interface {
	Subscribe(room string) (<-chan []byte, func())
}

// AccessChecker 判断用户能否读取房间。
type AccessChecker interface {
	CanAccess(ctx context.Context, room string, userID uint, email string) (bool, error)
}

// Handler 以 Server-Sent Events 形式转发房间内的实时事件，供只读看板使用。
type Handler struct {
	tap       RoomTap
	access    AccessChecker
	heartbeat time.Duration
}

// New creates a new stream handler
func New(tap RoomTap, access AccessChecker) *Handler {
	return &Handler{tap: tap, access: access, heartbeat: 15 * time.Second}
}

// RegisterRoutes 注册 /{room}/events
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/{room}/events", h.handleEvents)
}

// StreamStatus 是连接建立时的首个事件
type StreamStatus struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	room := chi.URLParam(r, "room")
	if h.access != nil {
		allowed, err := h.access.CanAccess(r.Context(), room, caller.UserID, caller.Email)
		if err != nil {
			log.Error().Err(err).Str("room", room).Msg("[sse] access check failed")
			utils.RespondError(w, http.StatusInternalServerError, "stream unavailable")
			return
		}
		if !allowed {
			utils.RespondError(w, http.StatusForbidden, "no access to room")
			return
		}
	}

	if err := h.Stream(r.Context(), w, room); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("[sse] stream ended with error")
	}
}

// Stream 持续写出 room 的事件，直到 ctx 结束或 Hub 关闭订阅。
func (h *Handler) Stream(ctx context.Context, w http.ResponseWriter, room string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	frames, cancel := h.tap.Subscribe(room)
	defer cancel()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "status", StreamStatus{Room: room, Message: "stream established"}); err != nil {
		return err
	}

	log.Debug().Str("room", room).Msg("[sse] opening room stream")
	defer log.Debug().Str("room", room).Msg("[sse] closing room stream")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			env, err := protocol.Decode(frame)
			if err != nil {
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, env.Event, env.Data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return err
			}
		}
	}
}
