// Package store 负责打开数据库并迁移表结构。
package store

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/safechat/backend/internal/config"
	"github.com/zhouzirui/safechat/backend/internal/model/chat"
	"github.com/zhouzirui/safechat/backend/internal/model/user"
)

// Open 按配置的驱动建立 gorm 连接。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver != "mysql" {
		// sqlite 只允许单写者，内存库在多连接下也不共享。
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// OpenMemory 打开一个进程内 sqlite 库并完成迁移，供测试与本地试用。
func OpenMemory() (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 创建或更新所有表。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&user.User{},
		&chat.Chat{},
		&chat.Room{},
		&chat.RoomMember{},
		&chat.Message{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 默认会话，对应客户端缺省的 chat_id。
	var seeded chat.Chat
	return db.Where(chat.Chat{ID: 1}).
		Attrs(chat.Chat{Name: "default", IsGroup: true}).
		FirstOrCreate(&seeded).Error
}
