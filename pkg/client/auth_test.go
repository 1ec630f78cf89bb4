package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "taken@example.com" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"email already registered"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"User registered"}`))
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body credentials
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body.Password {
		case "right":
			_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer"}`))
		case "empty":
			_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid credentials"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthClientRegister(t *testing.T) {
	srv := fakeAuthServer(t)
	c := NewAuthClient(srv.URL + "/")

	require.NoError(t, c.Register(context.Background(), "new@example.com", "pw"))

	err := c.Register(context.Background(), "taken@example.com", "pw")
	require.ErrorIs(t, err, ErrRegisterFailed)
	assert.Contains(t, err.Error(), "email already registered")
}

func TestAuthClientLogin(t *testing.T) {
	srv := fakeAuthServer(t)
	c := NewAuthClient(srv.URL)

	token, err := c.Login(context.Background(), "amy@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	for _, pw := range []string{"wrong", "empty"} {
		_, err := c.Login(context.Background(), "amy@example.com", pw)
		assert.True(t, errors.Is(err, ErrLoginFailed), pw)
	}
}

func TestSessionLoginPersistsToken(t *testing.T) {
	srv := fakeAuthServer(t)
	store := &MemoryTokenStore{}
	session := Session{Auth: NewAuthClient(srv.URL), Tokens: store}

	_, err := session.Token()
	require.ErrorIs(t, err, ErrNoToken)

	_, err = session.Login(context.Background(), "amy@example.com", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
	_, err = store.Load()
	require.ErrorIs(t, err, ErrNoToken)

	_, err = session.Login(context.Background(), "amy@example.com", "right")
	require.NoError(t, err)
	token, err := session.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := FileTokenStore{Path: path}

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save("tok-file"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	token, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-file", token)
}
