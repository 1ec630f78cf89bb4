package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	authService "github.com/zhouzirui/safechat/backend/internal/service/auth"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// Handler 认证相关的HTTP处理器
type Handler struct {
	authSvc *authService.Service
}

// New 创建认证处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes 注册 /register 与 /login
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, bool) {
	var payload credentials
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return payload, false
	}
	return payload, payload.Email != "" && payload.Password != ""
}

// handleRegister 创建账号
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeCredentials(r)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if _, err := h.authSvc.Register(r.Context(), payload.Email, payload.Password); err != nil {
		switch {
		case errors.Is(err, authService.ErrEmailTaken):
			utils.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, authService.ErrInvalidEmail),
			errors.Is(err, authService.ErrWeakPassword),
			errors.Is(err, authService.ErrPasswordTooLong):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Msg("[auth] register failed")
			utils.RespondError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"message": "User registered"})
}

// handleLogin 校验凭证并签发令牌
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeCredentials(r)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, err := h.authSvc.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, authService.ErrInvalidCredentials) {
			utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Msg("[auth] login failed")
		utils.RespondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, token)
}
