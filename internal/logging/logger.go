// Package logging 初始化全局 zerolog 日志。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/config"
)

// Init 根据配置设置全局 log.Logger，返回同一个 logger 方便注入。
func Init(cfg config.LogConfig, service string) zerolog.Logger {
	return InitWithWriter(cfg, service, os.Stdout)
}

// InitWithWriter 与 Init 相同，但允许指定输出目标。
func InitWithWriter(cfg config.LogConfig, service string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = out
	if !strings.EqualFold(cfg.Format, "json") {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Str("service", service).
		Timestamp().
		Logger()

	log.Logger = logger
	return logger
}

// ParseLevel 无法识别时返回 info。
func ParseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
