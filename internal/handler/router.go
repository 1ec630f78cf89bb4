package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/zhouzirui/safechat/backend/internal/handler/auth"
	"github.com/zhouzirui/safechat/backend/internal/handler/rooms"
	"github.com/zhouzirui/safechat/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/safechat/backend/internal/middleware"
	"github.com/zhouzirui/safechat/backend/internal/realtime"
	authService "github.com/zhouzirui/safechat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// Options 汇总路由依赖。
type Options struct {
	AllowedOrigins []string
	Auth           *authService.Service
	Chat           *chatService.Service
	Hub            *realtime.Hub
}

// NewRouter wires HTTP routes to core services.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigins))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "chat backend running"})
	})

	r.Route("/auth", func(ar chi.Router) {
		authHandler.New(opts.Auth).RegisterRoutes(ar)
	})

	r.Route("/rooms", func(rr chi.Router) {
		rr.Use(middlewarePkg.RequireAuth(opts.Auth.Tokens()))
		rooms.New(opts.Chat).RegisterRoutes(rr)
		if opts.Hub != nil {
			stream.New(opts.Hub, opts.Chat).RegisterRoutes(rr)
		}
	})

	if opts.Hub != nil {
		r.Get("/ws", opts.Hub.ServeWS)
	}

	return r
}
