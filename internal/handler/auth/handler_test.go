package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/safechat/backend/internal/config"
	authService "github.com/zhouzirui/safechat/backend/internal/service/auth"
	"github.com/zhouzirui/safechat/backend/internal/store"
)

func setupRouter(t *testing.T) (*chi.Mux, *authService.Service) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory err: %v", err)
	}
	svc := authService.NewService(
		authService.NewUserRepository(db),
		authService.NewPasswordHasher(bcrypt.MinCost),
		authService.NewTokenManager(config.AuthConfig{Secret: "handler-secret", TokenTTL: time.Hour}),
	)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, svc
}

func post(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRegisterThenLogin(t *testing.T) {
	r, svc := setupRouter(t)

	resp := post(r, "/register", map[string]string{"email": "dana@example.com", "password": "hunter22"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var registered map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if registered["message"] != "User registered" {
		t.Fatalf("unexpected register body: %v", registered)
	}

	resp = post(r, "/login", map[string]string{"email": "dana@example.com", "password": "hunter22"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var token authService.Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if token.TokenType != "bearer" || token.AccessToken == "" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if _, err := svc.Tokens().Verify(token.AccessToken); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestRegisterErrors(t *testing.T) {
	r, _ := setupRouter(t)

	if resp := post(r, "/register", map[string]string{"email": "erin@example.com", "password": "longenough"}); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	cases := []struct {
		name string
		body any
		want int
	}{
		{"duplicate", map[string]string{"email": "erin@example.com", "password": "longenough"}, http.StatusConflict},
		{"bad email", map[string]string{"email": "erin", "password": "longenough"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "frank@example.com", "password": "123"}, http.StatusBadRequest},
		{"missing fields", map[string]string{"email": "frank@example.com"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if resp := post(r, "/register", tc.body); resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	r, _ := setupRouter(t)
	post(r, "/register", map[string]string{"email": "gus@example.com", "password": "rightpass"})

	for _, body := range []map[string]string{
		{"email": "gus@example.com", "password": "wrongpass"},
		{"email": "nobody@example.com", "password": "rightpass"},
	} {
		resp := post(r, "/login", body)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.Code)
		}
		var payload map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload["error"] != "Invalid credentials" {
			t.Fatalf("unexpected error body: %v", payload)
		}
	}
}

func TestLoginMalformedBody(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
