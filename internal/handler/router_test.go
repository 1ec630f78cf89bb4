package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
	"github.com/zhouzirui/safechat/backend/internal/config"
	"github.com/zhouzirui/safechat/backend/internal/realtime"
	authService "github.com/zhouzirui/safechat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/internal/service/moderation"
	"github.com/zhouzirui/safechat/backend/internal/store"
	"github.com/zhouzirui/safechat/backend/pkg/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory err: %v", err)
	}

	tokens := authService.NewTokenManager(config.AuthConfig{Secret: "router-secret", TokenTTL: time.Hour})
	authSvc := authService.NewService(authService.NewUserRepository(db), authService.NewPasswordHasher(bcrypt.MinCost), tokens)
	chatSvc := chatService.NewService(db)
	hub := realtime.NewHub(realtime.Config{}, realtime.Deps{
		Auth:      tokens,
		Moderator: moderation.NewService(toxicity.DefaultPolicy()),
		Messages:  chatSvc,
	})

	srv := httptest.NewServer(NewRouter(Options{Auth: authSvc, Chat: chatSvc, Hub: hub}))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRootStatus(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET / err: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "chat backend running" {
		t.Fatalf("unexpected root response %d %v", resp.StatusCode, body)
	}
}

func TestRegisterLoginAndConnect(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"email": "hana@example.com", "password": "s3cretpw"}

	if resp := postJSON(t, srv.URL+"/auth/register", creds); resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}

	resp := postJSON(t, srv.URL+"/auth/login", creds)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var token authService.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode token: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token.AccessToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read connect: %v", err)
	}
	env, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if env.Event != protocol.EventConnect {
		t.Fatalf("expected connect first, got %s", env.Event)
	}
	var connected protocol.ConnectPayload
	if err := env.Bind(&connected); err != nil || connected.User != "hana@example.com" {
		t.Fatalf("unexpected connect payload %+v (%v)", connected, err)
	}
}

func TestRoomsRequireBearer(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/rooms/create", map[string]string{"name": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
