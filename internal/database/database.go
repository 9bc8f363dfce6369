package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/feedbuddy/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是统一的 SQLite 数据库连接。
// 订阅表和配额表共享同一个数据库文件，便于事务和备份。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.feedbuddy/feedbuddy.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".feedbuddy", "feedbuddy.db")
		} else {
			dbPath = "./feedbuddy.db"
		}
	}

	// 确保目录存在（内存数据库除外）
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 订阅表：每行对应一个 (目标频道, 来源) 组合
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			destination_id TEXT NOT NULL,
			owner_scope_id TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_identifier TEXT NOT NULL,
			template TEXT NOT NULL DEFAULT '',
			mention_targets TEXT NOT NULL DEFAULT '[]',
			watermark_time DATETIME,
			watermark_ref TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(destination_id, source_type, source_identifier)
		)`,
		// 按归属域覆盖的订阅配额表
		`CREATE TABLE IF NOT EXISTS scope_quotas (
			scope_id TEXT PRIMARY KEY,
			max_subscriptions INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner_scope ON subscriptions(owner_scope_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_destination ON subscriptions(destination_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_source ON subscriptions(source_type, source_identifier)`,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
