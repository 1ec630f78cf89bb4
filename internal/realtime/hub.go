package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/model/chat"
	"github.com/zhouzirui/safechat/backend/internal/service/auth"
	chatservice "github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/internal/service/moderation"
	"github.com/zhouzirui/safechat/backend/internal/service/presence"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
	"github.com/zhouzirui/safechat/backend/pkg/utils"
)

// Authenticator 校验连接时携带的令牌。
type Authenticator interface {
	Verify(token string) (auth.Identity, error)
}

// Moderator 审核一条聊天消息。
type Moderator interface {
	Moderate(ctx context.Context, user, text string) (moderation.Result, error)
}

// MessageStore 持久化消息并提供用户的持久房间与访问控制。
type MessageStore interface {
	SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error)
	ListUserRooms(ctx context.Context, userID uint) ([]chat.Room, error)
	CanAccess(ctx context.Context, room string, userID uint, email string) (bool, error)
}

// Config 控制 Hub 行为。
type Config struct {
	DefaultRoom    string
	MaxMessageLen  int
	AllowedOrigins []string
	EventTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultRoom == "" {
		c.DefaultRoom = "global"
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 2000
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 15 * time.Second
	}
	return c
}

// Deps 汇总 Hub 依赖。Broker 为空时只在本实例内投递。
type Deps struct {
	Auth      Authenticator
	Moderator Moderator
	Messages  MessageStore
	Presence  presence.Store
	Broker    Broker
}

type eventHandler func(ctx context.Context, c *Client, env protocol.Envelope)

// Hub 管理全部实时连接、房间成员关系以及事件分发。
type Hub struct {
	id       string
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
	handlers map[string]eventHandler

	baseCtx context.Context
	cancel  context.CancelFunc

	mu        sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	taps    map[string]map[chan []byte]struct{}
	closed  bool
}

// NewHub 创建 Hub。Presence 为空时使用内存实现。
func NewHub(cfg Config, deps Deps) *Hub {
	cfg = cfg.withDefaults()
	if deps.Presence == nil {
		deps.Presence = presence.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		id:      uuid.NewString(),
		cfg:     cfg,
		deps:    deps,
		baseCtx: ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		taps:    make(map[string]map[chan []byte]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	h.handlers = map[string]eventHandler{
		protocol.EventJoinRoom:         h.onJoinRoom,
		protocol.EventLeaveRoom:        h.onLeaveRoom,
		protocol.EventChatMessage:      h.onChatMessage,
		protocol.EventTyping:           h.onTyping,
		protocol.EventStartPrivateChat: h.onStartPrivateChat,
	}
	return h
}

// Start 订阅跨实例投递。没有 Broker 时立即返回。
func (h *Hub) Start(ctx context.Context) error {
	if h.deps.Broker == nil {
		return nil
	}
	return h.deps.Broker.Subscribe(ctx, h.receive)
}

// DefaultRoom 返回连接默认加入的房间。
func (h *Hub) DefaultRoom() string {
	return h.cfg.DefaultRoom
}

// ServeWS 校验令牌后升级为 WebSocket。令牌来自 token 查询参数或 Bearer 头。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)
	identity, err := h.deps.Auth.Verify(token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("user", identity.Email).Msg("[realtime] upgrade failed")
		return
	}

	c := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		sid:   uuid.NewString(),
		user:  identity,
		rooms: make(map[string]struct{}),
	}

	if err := h.register(c); err != nil {
		log.Warn().Err(err).Str("user", identity.Email).Msg("[realtime] register failed")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// TokenFromRequest 读取 token 查询参数，缺失时读取 Authorization: Bearer。
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return len(h.cfg.AllowedOrigins) == 0
}

var errHubClosed = errors.New("hub is shut down")

func (h *Hub) register(c *Client) error {
	ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.EventTimeout)
	defer cancel()

	rooms := []string{h.cfg.DefaultRoom}
	if h.deps.Messages != nil {
		persisted, err := h.deps.Messages.ListUserRooms(ctx, c.user.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user", c.user.Email).Msg("[realtime] load rooms failed")
		}
		for _, room := range persisted {
			rooms = append(rooms, chatservice.RoomKey(room.ID))
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errHubClosed
	}
	h.clients[c] = struct{}{}
	for _, room := range rooms {
		h.joinLocked(c, room)
	}
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("user", c.user.Email).Str("sid", c.sid).Int("connections", total).Msg("[realtime] connected")

	// presence 按连接计数，跨实例共享
	if err := h.deps.Presence.Add(ctx, c.user.Email); err != nil {
		log.Warn().Err(err).Str("user", c.user.Email).Msg("[realtime] presence add failed")
	}

	h.emitTo(c, protocol.EventConnect, protocol.ConnectPayload{SID: c.sid, User: c.user.Email})
	h.broadcastOnlineUsers(ctx)
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	close(c.send)
	h.mu.Unlock()

	log.Info().Str("user", c.user.Email).Str("sid", c.sid).Msg("[realtime] disconnected")

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.EventTimeout)
	defer cancel()
	if err := h.deps.Presence.Remove(ctx, c.user.Email); err != nil {
		log.Warn().Err(err).Str("user", c.user.Email).Msg("[realtime] presence remove failed")
	}
	h.broadcastOnlineUsers(ctx)
}

// Shutdown 关闭所有连接并停止后续注册。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	for room, subs := range h.taps {
		for ch := range subs {
			close(ch)
		}
		delete(h.taps, room)
	}
	h.mu.Unlock()

	h.cancel()
	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.Close()
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return true
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.joinLocked(c, room)
	}
	h.mu.Unlock()
}

func (h *Hub) leave(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c, room)
}

func (h *Hub) inRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// RoomMembers 返回本实例中房间内的用户（去重，顺序不定）。
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	users := make([]string, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if _, ok := seen[c.user.Email]; ok {
			continue
		}
		seen[c.user.Email] = struct{}{}
		users = append(users, c.user.Email)
	}
	return users
}

// Subscribe 返回房间事件的只读副本，用于 SSE 等旁路订阅。cancel 必须调用。
func (h *Hub) Subscribe(room string) (<-chan []byte, func()) {
	ch := make(chan []byte, sendBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	subs, ok := h.taps[room]
	if !ok {
		subs = make(map[chan []byte]struct{})
		h.taps[room] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.taps[room]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(h.taps, room)
				}
			}
		})
	}
}
