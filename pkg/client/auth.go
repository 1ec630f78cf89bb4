// Package client 是聊天服务的 Go 客户端：登录注册、令牌保存、实时连接与视图状态。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrLoginFailed 是登录失败的统一信号，不区分原因。
	ErrLoginFailed    = errors.New("login failed")
	ErrRegisterFailed = errors.New("registration failed")
)

// AuthClient 调用 /auth/register 与 /auth/login。
type AuthClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewAuthClient 使用 10 秒超时的默认 http.Client。
func NewAuthClient(baseURL string) *AuthClient {
	return &AuthClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register 创建账号，成功时不返回任何内容。
func (c *AuthClient) Register(ctx context.Context, email, password string) error {
	resp, err := c.post(ctx, "/auth/register", credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%w: %s", ErrRegisterFailed, body.Error)
		}
		return fmt.Errorf("%w: status %d", ErrRegisterFailed, resp.StatusCode)
	}
	return nil
}

// Login 返回访问令牌。非 2xx 或缺少 access_token 时返回 ErrLoginFailed。
func (c *AuthClient) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.post(ctx, "/auth/login", credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", ErrLoginFailed
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", ErrLoginFailed
	}
	return body.AccessToken, nil
}

func (c *AuthClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	return resp, nil
}

// Session 把登录与令牌持久化绑在一起。
type Session struct {
	Auth   *AuthClient
	Tokens TokenStore
}

// Login 登录成功后保存令牌。
func (s *Session) Login(ctx context.Context, email, password string) (string, error) {
	token, err := s.Auth.Login(ctx, email, password)
	if err != nil {
		return "", err
	}
	if err := s.Tokens.Save(token); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return token, nil
}

// Token 读取已保存的令牌。
func (s *Session) Token() (string, error) {
	return s.Tokens.Load()
}
