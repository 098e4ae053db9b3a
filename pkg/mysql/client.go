package mysql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Client 封裝 GORM DB 實例
type Client struct {
	db *gorm.DB
}

// NewClient 連線到 MySQL，失敗時依 cfg 重試
//
// 參數:
//
//	ctx: 取消時停止重試
//	cfg: 連線與連線池設定
//	log: 重試過程與 SQL log 都寫到這裡，nil 時不記錄
//
// 回傳值:
//
//	*Client: 已通過 ping 的客戶端
//	error: 重試用盡或 ctx 取消
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	gormConfig := &gorm.Config{
		// 寫入都透過明確的 db.Transaction
		SkipDefaultTransaction: true,
		// 重複鍵錯誤轉成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         newGormLogger(log.Named("sql"), cfg.LogLevel, cfg.SlowThreshold),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	db, err := connect(ctx, cfg, gormConfig, log)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Client{db: db}, nil
}

// connect 開啟連線並 ping，資料庫還沒起來時 (例如 docker compose 同時啟動) 等待重試
func connect(ctx context.Context, cfg Config, gormConfig *gorm.Config, log *zap.Logger) (*gorm.DB, error) {
	attempts, interval := cfg.retries()
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
		if err == nil {
			if err = ping(ctx, db); err == nil {
				return db, nil
			}
		}
		lastErr = err
		if i == attempts {
			break
		}
		log.Warn("mysql connect failed, retrying",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_in", interval),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, fmt.Errorf("connect to mysql after %d attempts: %w", attempts, lastErr)
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DB 回傳底層的 *gorm.DB，供 adapter 使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Ping 健康檢查 (/readyz)
func (c *Client) Ping(ctx context.Context) error {
	return ping(ctx, c.db)
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
