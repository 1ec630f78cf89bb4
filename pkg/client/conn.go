package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

// ErrUnauthorized 表示服务端拒绝了令牌。
var ErrUnauthorized = errors.New("realtime connection unauthorized")

const writeWait = 10 * time.Second

// Listener 在 State 更新之后收到每个入站事件。
type Listener func(event string, data json.RawMessage)

type options struct {
	defaultRoom string
	typingTTL   time.Duration
	listener    Listener
	dialer      *websocket.Dialer
	logger      zerolog.Logger
}

// Option 调整 Dial 行为。
type Option func(*options)

// WithDefaultRoom 默认 "global"。
func WithDefaultRoom(room string) Option {
	return func(o *options) { o.defaultRoom = room }
}

func WithTypingTTL(ttl time.Duration) Option {
	return func(o *options) { o.typingTTL = ttl }
}

func WithListener(l Listener) Option {
	return func(o *options) { o.listener = l }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Conn 是一条已认证的实时连接。
type Conn struct {
	ws       *websocket.Conn
	state    *State
	listener Listener
	log      zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial 连接 wsURL，令牌通过 token 查询参数传递。
func Dial(ctx context.Context, wsURL, token string, opts ...Option) (*Conn, error) {
	o := options{
		defaultRoom: "global",
		dialer:      websocket.DefaultDialer,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, resp, err := o.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Conn{
		ws:       ws,
		state:    NewState(o.defaultRoom, o.typingTTL),
		listener: o.listener,
		log:      o.logger,
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// State 返回连接维护的视图状态。
func (c *Conn) State() *State { return c.state }

// Done 在读循环结束后关闭。
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close 总是关闭连接，可重复调用。
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Send 发送到当前房间，空文本直接忽略。
func (c *Conn) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.emit(protocol.EventChatMessage, protocol.ChatMessagePayload{
		Room:    c.state.CurrentRoom(),
		Message: text,
		ChatID:  protocol.DefaultChatID,
	})
}

// Typing 通知当前房间正在输入。
func (c *Conn) Typing() error {
	return c.emit(protocol.EventTyping, protocol.RoomPayload{Room: c.state.CurrentRoom()})
}

// StartPrivateChat 请求与 target 私聊，空目标直接忽略。
func (c *Conn) StartPrivateChat(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	return c.emit(protocol.EventStartPrivateChat, protocol.StartPrivateChatPayload{TargetUser: target})
}

// BackToDefault 离开当前房间并回到默认房间，清空消息。已在默认房间时不做任何事。
func (c *Conn) BackToDefault() error {
	current := c.state.CurrentRoom()
	if current == c.state.DefaultRoom() {
		return nil
	}
	if err := c.emit(protocol.EventLeaveRoom, protocol.RoomPayload{Room: current}); err != nil {
		return err
	}
	if err := c.emit(protocol.EventJoinRoom, protocol.RoomPayload{Room: c.state.DefaultRoom()}); err != nil {
		return err
	}
	c.state.SwitchRoom(c.state.DefaultRoom())
	return nil
}

func (c *Conn) emit(event string, data any) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("realtime read loop stopped")
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if err := c.handle(env); err != nil {
			c.log.Warn().Err(err).Str("event", env.Event).Msg("failed to handle event")
			continue
		}
		if c.listener != nil {
			c.listener(env.Event, env.Data)
		}
	}
}

func (c *Conn) handle(env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventConnect:
		return c.emit(protocol.EventJoinRoom, protocol.RoomPayload{Room: c.state.DefaultRoom()})

	case protocol.EventNewMessage:
		var p protocol.NewMessagePayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		if !c.inCurrentRoom(p.Room) {
			return nil
		}
		c.state.Append(Message{
			Sender:        p.User,
			Text:          p.Message,
			ModeratedText: p.ModeratedText,
			Toxicity:      p.Toxicity,
			Censored:      p.Status == "censored",
			Room:          p.Room,
			At:            p.CreatedAt,
		})

	case protocol.EventModerationNotice:
		var p protocol.ModerationNoticePayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		c.state.SetNotice(p.Message)
		c.state.SetToxicity(p.Toxicity)

	case protocol.EventToxicityUpdate:
		var p protocol.ToxicityUpdatePayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		c.state.SetToxicity(p.Toxicity)

	case protocol.EventTyping:
		var p protocol.TypingPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		if c.inCurrentRoom(p.Room) {
			c.state.MarkTyping(p.User)
		}

	case protocol.EventOnlineUsers:
		var users []string
		if err := env.Bind(&users); err != nil {
			return err
		}
		c.state.SetOnline(users)

	case protocol.EventSystem:
		var p protocol.SystemPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		if c.inCurrentRoom(p.Room) {
			c.state.Append(Message{System: true, Text: p.Message, Room: p.Room})
		}

	case protocol.EventPrivateRoomCreated:
		var p protocol.PrivateRoomCreatedPayload
		if err := env.Bind(&p); err != nil {
			return err
		}
		c.state.SwitchRoom(p.Room)
		return c.emit(protocol.EventJoinRoom, protocol.RoomPayload{Room: p.Room})
	}
	return nil
}

// inCurrentRoom 未标注房间的事件视为属于当前房间。
func (c *Conn) inCurrentRoom(room string) bool {
	return room == "" || room == c.state.CurrentRoom()
}
