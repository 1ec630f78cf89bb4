package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
)

func TestHTTPScorerPostsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "you clown" {
			t.Errorf("unexpected text %q", body["text"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"toxicity":0.62,"scores":{"toxic":0.4,"severe_toxic":0.01,"obscene":0.02,"threat":0.0,"insult":0.62,"identity_hate":0.0}}`))
	}))
	defer srv.Close()

	scorer := NewHTTPScorer(srv.URL, time.Second)
	scores, err := scorer.Score(context.Background(), "you clown")
	require.NoError(t, err)
	assert.InDelta(t, 0.62, scores.Toxicity(), 1e-9)
	assert.Equal(t, toxicity.Insult, scores.Dominant())
}

func TestHTTPScorerToxicityOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"toxicity":0.9}`))
	}))
	defer srv.Close()

	scores, err := NewHTTPScorer(srv.URL, time.Second).Score(context.Background(), "x")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, scores[toxicity.Toxic], 1e-9)
}

func TestHTTPScorerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPScorer(srv.URL, time.Second).Score(context.Background(), "x"); err == nil {
		t.Fatal("expected error for non-200 response")
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()

	if _, err := NewHTTPScorer(empty.URL, time.Second).Score(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty response")
	}
}
