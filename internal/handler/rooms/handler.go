package rooms

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/middleware"
	chatService "github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// Handler 房间相关的HTTP处理器，所有路由都要求已认证。
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建房间处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册房间路由。调用方负责挂载认证中间件。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/create", h.handleCreate)
	r.Get("/my/{userID}", h.handleMyRooms)
	r.Post("/{room}/join", h.handleJoin)
	r.Get("/{room}/messages", h.handleHistory)
}

type roomResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Room string `json:"room"`
}

// handleCreate 创建持久房间，创建者自动成为成员
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.CreateRoom(r.Context(), payload.Name, caller.UserID)
	if err != nil {
		if errors.Is(err, chatService.ErrRoomNameRequired) || errors.Is(err, chatService.ErrRoomNameTooLong) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Uint("user_id", caller.UserID).Msg("[rooms] create failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"room_id": room.ID,
		"name":    room.Name,
		"room":    chatService.RoomKey(room.ID),
	})
}

// handleMyRooms 列出调用者加入的持久房间
func (h *Handler) handleMyRooms(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if uint(userID) != caller.UserID {
		utils.RespondError(w, http.StatusForbidden, "cannot list rooms of another user")
		return
	}

	rooms, err := h.chatSvc.ListUserRooms(r.Context(), caller.UserID)
	if err != nil {
		log.Error().Err(err).Uint("user_id", caller.UserID).Msg("[rooms] list failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}

	resp := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, roomResponse{ID: room.ID, Name: room.Name, Room: chatService.RoomKey(room.ID)})
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleJoin 把调用者加入持久房间
func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	roomID, ok := parseRoomID(chi.URLParam(r, "room"))
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	if err := h.chatSvc.AddMember(r.Context(), roomID, caller.UserID); err != nil {
		if errors.Is(err, chatService.ErrRoomNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		log.Error().Err(err).Uint("room_id", roomID).Msg("[rooms] join failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"room": chatService.RoomKey(roomID)})
}

// parseRoomID 接受数字编号或 room_<id>。
func parseRoomID(raw string) (uint, bool) {
	if id, ok := chatService.ParseRoomKey(raw); ok {
		return id, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// handleHistory 返回房间最近的消息
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	room := chi.URLParam(r, "room")
	allowed, err := h.chatSvc.CanAccess(r.Context(), room, caller.UserID, caller.Email)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("[rooms] access check failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if !allowed {
		utils.RespondError(w, http.StatusForbidden, "no access to room")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	messages, err := h.chatSvc.History(r.Context(), room, limit)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("[rooms] history failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	utils.RespondJSON(w, http.StatusOK, messages)
}
