package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/safechat/backend/internal/middleware"
	"github.com/zhouzirui/safechat/backend/internal/service/auth"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

type fakeTap struct {
	ch       chan []byte
	room     string
	released bool
}

func (f *fakeTap) Subscribe(room string) (<-chan []byte, func()) {
	f.room = room
	return f.ch, func() { f.released = true }
}

type denyAll struct{}

func (denyAll) CanAccess(context.Context, string, uint, string) (bool, error) { return false, nil }

func TestStreamForwardsRoomFrames(t *testing.T) {
	tap := &fakeTap{ch: make(chan []byte, 4)}
	handler := New(tap, nil)

	frame, err := protocol.Encode(protocol.EventSystem, protocol.SystemPayload{Message: "amy joined the room", Room: "lobby"})
	if err != nil {
		t.Fatalf("Encode err: %v", err)
	}
	tap.ch <- frame
	tap.ch <- []byte("garbage")
	close(tap.ch)

	resp := httptest.NewRecorder()
	if err := handler.Stream(context.Background(), resp, "lobby"); err != nil {
		t.Fatalf("Stream err: %v", err)
	}

	body := resp.Body.String()
	if got := resp.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.HasPrefix(body, "event: status\n") {
		t.Fatalf("expected status event first, got %q", body)
	}
	if !strings.Contains(body, "event: system\ndata: {\"message\":\"amy joined the room\",\"room\":\"lobby\"}\n\n") {
		t.Fatalf("system frame not forwarded: %q", body)
	}
	if strings.Contains(body, "garbage") {
		t.Fatalf("malformed frame leaked: %q", body)
	}
	if tap.room != "lobby" || !tap.released {
		t.Fatalf("subscription not managed: room=%s released=%v", tap.room, tap.released)
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	tap := &fakeTap{ch: make(chan []byte)}
	handler := New(tap, nil)
	handler.heartbeat = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	resp := httptest.NewRecorder()
	if err := handler.Stream(ctx, resp, "global"); err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	if !strings.Contains(resp.Body.String(), ": heartbeat\n\n") {
		t.Fatalf("expected heartbeat comment, got %q", resp.Body.String())
	}
}

func TestEventsRouteChecksAccess(t *testing.T) {
	handler := New(&fakeTap{ch: make(chan []byte)}, denyAll{})
	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/room_1/events", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.Code)
	}

	req = req.WithContext(middleware.WithIdentity(req.Context(), auth.Identity{UserID: 1, Email: "amy@example.com"}))
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
