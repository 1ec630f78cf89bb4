package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Moderation ModerationConfig
	AI         AIConfig
	AMQP       AMQPConfig
	Log        LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	moderation, err := loadModerationConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Auth:       auth,
		Database:   database,
		Redis:      RedisConfig{URL: strings.TrimSpace(os.Getenv("REDIS_URL"))},
		Moderation: moderation,
		AI:         ai,
		AMQP: AMQPConfig{
			URL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
			Exchange: getEnvOrDefault("AMQP_EXCHANGE", "moderation_events"),
		},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	DefaultRoom    string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	addr := ":" + port
	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		addr = port
	}

	return ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		DefaultRoom:    getEnvOrDefault("DEFAULT_ROOM", "global"),
	}, nil
}

// AuthConfig 描述令牌签发配置。
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

const devSecret = "safechat-dev-secret"

func loadAuthConfig() (AuthConfig, error) {
	ttl, err := parseDurationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return AuthConfig{}, err
	}
	if ttl <= 0 {
		return AuthConfig{}, fmt.Errorf("invalid JWT_TTL value %q: must be positive", os.Getenv("JWT_TTL"))
	}

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		if strings.EqualFold(os.Getenv("APP_ENV"), "production") {
			return AuthConfig{}, fmt.Errorf("JWT_SECRET is required in production")
		}
		secret = devSecret
	}

	return AuthConfig{
		Secret:   secret,
		TokenTTL: ttl,
		Issuer:   getEnvOrDefault("JWT_ISSUER", "safechat"),
	}, nil
}

// DatabaseConfig 选择 gorm 驱动与连接串。
type DatabaseConfig struct {
	Driver string
	DSN    string
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite"))
	switch driver {
	case "sqlite", "mysql":
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid DB_DRIVER value %q: want sqlite or mysql", driver)
	}

	return DatabaseConfig{
		Driver: driver,
		DSN:    getEnvOrDefault("DATABASE_URL", "file:safechat.db?cache=shared"),
	}, nil
}

// RedisConfig 为空时在线状态与风险值只保存在进程内。
type RedisConfig struct {
	URL string
}

// Enabled 表示是否配置了 Redis。
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// ModerationConfig 描述内容审核管线。
type ModerationConfig struct {
	MLURL           string
	MLTimeout       time.Duration
	CensorThreshold float64
	BlockThreshold  float64
	LLMEnabled      bool
}

func loadModerationConfig() (ModerationConfig, error) {
	timeout, err := parseDurationEnv("ML_TIMEOUT", 5*time.Second)
	if err != nil {
		return ModerationConfig{}, err
	}

	censor := 0.3
	if override, err := parseOptionalFloatEnv("MODERATION_CENSOR_THRESHOLD"); err != nil {
		return ModerationConfig{}, err
	} else if override != nil {
		censor = *override
	}

	block := 0.7
	if override, err := parseOptionalFloatEnv("MODERATION_BLOCK_THRESHOLD"); err != nil {
		return ModerationConfig{}, err
	} else if override != nil {
		block = *override
	}

	if censor < 0 || block > 1 || censor >= block {
		return ModerationConfig{}, fmt.Errorf("invalid moderation thresholds: censor=%v block=%v (need 0 <= censor < block <= 1)", censor, block)
	}

	llm, err := parseBoolEnv("MODERATION_LLM_ENABLED", false)
	if err != nil {
		return ModerationConfig{}, err
	}

	return ModerationConfig{
		MLURL:           strings.TrimRight(strings.TrimSpace(os.Getenv("ML_URL")), "/"),
		MLTimeout:       timeout,
		CensorThreshold: censor,
		BlockThreshold:  block,
		LLMEnabled:      llm,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// AMQPConfig 为空 URL 时不发布审核事件。
type AMQPConfig struct {
	URL      string
	Exchange string
}

// Enabled 表示是否配置了 RabbitMQ。
func (c AMQPConfig) Enabled() bool {
	return c.URL != ""
}

// LogConfig 控制 zerolog 输出。
type LogConfig struct {
	Level  string
	Format string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
