package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/model/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 characters")
	ErrEmailTaken         = errors.New("email already registered")
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72
)

// Token 是登录成功后返回给客户端的凭证。
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Service 处理注册与登录。
type Service struct {
	users  *UserRepository
	hasher *PasswordHasher
	tokens *TokenManager
}

// NewService 组装认证服务。
func NewService(users *UserRepository, hasher *PasswordHasher, tokens *TokenManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Tokens 暴露令牌管理器，供中间件与实时通道校验令牌。
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// NormalizeEmail 去除空白并转为小写。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 创建账号。
func (s *Service) Register(ctx context.Context, email, password string) (user.User, error) {
	email = NormalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return user.User{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return user.User{}, ErrWeakPassword
	}
	if len(password) > maxPasswordLen {
		return user.User{}, ErrPasswordTooLong
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return user.User{}, err
	}
	if exists {
		return user.User{}, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := user.User{Email: email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := s.users.Create(ctx, &u); err != nil {
		return user.User{}, err
	}

	log.Info().Uint("user_id", u.ID).Str("email", email).Msg("user registered")
	return u, nil
}

// Login 校验密码并签发令牌。未知邮箱与错误密码返回同一个错误。
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	u, err := s.users.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return Token{}, ErrInvalidCredentials
	}

	signed, err := s.tokens.Issue(Identity{UserID: u.ID, Email: u.Email})
	if err != nil {
		return Token{}, err
	}

	return Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}
