package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
)

// HTTPScorer 调用外部 ML 服务的 POST /predict。
type HTTPScorer struct {
	endpoint string
	client   *http.Client
}

// NewHTTPScorer baseURL 形如 http://127.0.0.1:8001。
func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPScorer{
		endpoint: baseURL + "/predict",
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPScorer) Name() string { return "ml" }

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Toxicity *float64          `json:"toxicity"`
	Scores   map[string]float64 `json:"scores"`
}

// Score 返回 ML 服务给出的分数；只有 toxicity 没有 scores 时记在 toxic 维度上。
func (s *HTTPScorer) Score(ctx context.Context, text string) (toxicity.Scores, error) {
	body, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call ml service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("ml service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var payload predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ml response: %w", err)
	}

	scores := toxicity.FromMap(payload.Scores)
	if len(scores) == 0 {
		if payload.Toxicity == nil {
			return nil, fmt.Errorf("ml response has neither scores nor toxicity")
		}
		scores = toxicity.FromMap(map[string]float64{string(toxicity.Toxic): *payload.Toxicity})
	}
	return scores, nil
}
