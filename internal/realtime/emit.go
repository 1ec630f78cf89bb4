package realtime

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

// emitTo 只发给 c。
func (h *Hub) emitTo(c *Client, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("[realtime] encode failed")
		return
	}

	h.mu.RLock()
	_, ok := h.clients[c]
	slow := false
	if ok {
		slow = !enqueue(c, frame)
	}
	h.mu.RUnlock()

	if slow {
		h.dropSlow([]*Client{c})
	}
}

// emitRoom 发给房间内除 skip 以外的连接，并转发给其他实例。
func (h *Hub) emitRoom(ctx context.Context, room, event string, data any, skip *Client) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("[realtime] encode failed")
		return
	}

	skipSID := ""
	if skip != nil {
		skipSID = skip.sid
	}
	h.deliverRoom(room, frame, skipSID)
	h.forward(ctx, Delivery{Origin: h.id, Room: room, Skip: skipSID, Frame: frame})
}

// emitAll 发给所有连接，并转发给其他实例。
func (h *Hub) emitAll(ctx context.Context, event string, data any) {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("[realtime] encode failed")
		return
	}

	h.deliverAll(frame)
	h.forward(ctx, Delivery{Origin: h.id, Frame: frame})
}

func (h *Hub) broadcastOnlineUsers(ctx context.Context) {
	users, err := h.deps.Presence.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("[realtime] list online users failed")
		return
	}
	h.emitAll(ctx, protocol.EventOnlineUsers, users)
}

func (h *Hub) forward(ctx context.Context, d Delivery) {
	if h.deps.Broker == nil {
		return
	}
	if err := h.deps.Broker.Publish(ctx, d); err != nil {
		log.Warn().Err(err).Str("room", d.Room).Msg("[realtime] broker publish failed")
	}
}

// receive 处理其他实例转发来的帧，忽略本实例自己发出的。
func (h *Hub) receive(d Delivery) {
	if d.Origin == h.id {
		return
	}
	if d.Room == "" {
		h.deliverAll(d.Frame)
		return
	}
	h.deliverRoom(d.Room, d.Frame, d.Skip)
}

func (h *Hub) deliverRoom(room string, frame []byte, skipSID string) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.rooms[room] {
		if c.sid == skipSID {
			continue
		}
		if !enqueue(c, frame) {
			slow = append(slow, c)
		}
	}
	for tap := range h.taps[room] {
		select {
		case tap <- frame:
		default:
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

func (h *Hub) deliverAll(frame []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		if !enqueue(c, frame) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.dropSlow(slow)
}

// enqueue 调用方须持有 h.mu 读锁，保证 send 尚未关闭。
func enqueue(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// dropSlow 关闭发送缓冲已满的连接，readPump 随后完成注销。
func (h *Hub) dropSlow(clients []*Client) {
	for _, c := range clients {
		log.Warn().Str("user", c.user.Email).Str("sid", c.sid).Msg("[realtime] send buffer full, closing connection")
		_ = c.conn.Close()
	}
}
