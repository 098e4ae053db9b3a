package mysql

import (
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

// Config MySQL 連線、連線池與啟動重試設定
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`

	// 連線池
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// 啟動時連線重試
	ConnectRetries int           `yaml:"connect_retries"`
	RetryInterval  time.Duration `yaml:"retry_interval"`

	// SQL log 等級: silent / error / warn / info
	LogLevel string `yaml:"log_level"`

	// SlowThreshold 超過這個時間的 SQL 以 warn 記錄，0 代表 200ms
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// DSN 產生 go-sql-driver 連線字串。
// 時間一律以 UTC 存取；clientFoundRows 讓條件式 UPDATE 回傳符合筆數，值沒變也算命中。
func (c *Config) DSN() string {
	dc := driver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.DBName
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.ClientFoundRows = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

func (c *Config) retries() (int, time.Duration) {
	n, interval := c.ConnectRetries, c.RetryInterval
	if n <= 0 {
		n = 10
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return n, interval
}
