package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	grpcadapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/scheduler"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/rabbitmq"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
)

// DefaultPath 預設設定檔位置
const DefaultPath = "config/config.yaml"

// envPrefix 環境變數覆蓋的前綴，例如 BANK_MYSQL_HOST
const envPrefix = "BANK_"

// Store / Notify driver
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	NotifyLog      = "log"
	NotifyKafka    = "kafka"
	NotifyRedis    = "redis"
	NotifyRabbitMQ = "rabbitmq"
)

// Config 服務設定
type Config struct {
	GRPC       GRPCConfig             `yaml:"grpc"`
	HTTP       HTTPConfig             `yaml:"http"`
	Store      StoreConfig            `yaml:"store"`
	MySQL      mysql.Config           `yaml:"mysql"`
	Redis      RedisConfig            `yaml:"redis"`
	Notify     NotifyConfig           `yaml:"notify"`
	Auth       grpcadapter.AuthConfig `yaml:"auth"`
	Ledger     LedgerConfig           `yaml:"ledger"`
	Interest   InterestConfig         `yaml:"interest"`
	Withdrawal WithdrawalConfig       `yaml:"withdrawal"`
	Log        logger.Config          `yaml:"log"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

// HTTPConfig /metrics 與 /healthz
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig 持久層選擇
//
//	driver: mysql | memory
//	wal_path: memory 模式的 journal 檔，空字串代表不落地
//	audit_buffer: > 0 時稽核紀錄經由單一寫入者佇列非同步寫入
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	WALPath     string `yaml:"wal_path"`
	AuditBuffer int    `yaml:"audit_buffer"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	LockPrefix string `yaml:"lock_prefix"`
}

// Enabled 有設定位址才使用 Redis 鎖
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// NotifyConfig 提款審核通知
type NotifyConfig struct {
	Driver       string          `yaml:"driver"`
	RedisChannel string          `yaml:"redis_channel"`
	Kafka        kafka.Config    `yaml:"kafka"`
	RabbitMQ     rabbitmq.Config `yaml:"rabbitmq"`
}

type LedgerConfig struct {
	StalenessWindow time.Duration `yaml:"staleness_window"`
	AuditTimeout    time.Duration `yaml:"audit_timeout"`
}

type InterestConfig struct {
	Workers int           `yaml:"workers"`
	LockTTL time.Duration `yaml:"lock_ttl"`
	Cron    string        `yaml:"cron"`
}

type WithdrawalConfig struct {
	Retention   time.Duration `yaml:"retention"`
	ArchiveCron string        `yaml:"archive_cron"`
}

// Scheduler 轉成排程設定
func (c *Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		InterestSpec: c.Interest.Cron,
		ArchiveSpec:  c.Withdrawal.ArchiveCron,
	}
}

// Load 讀取設定，順序: .env -> YAML -> BANK_* 環境變數 -> 預設值
//
// 參數:
//
//	path: YAML 檔路徑，檔案不存在時只用環境變數與預設值
func Load(path string) (*Config, error) {
	// .env 只補上尚未設定的環境變數
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查 driver 與必要欄位
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMySQL, StoreMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Notify.Driver {
	case NotifyLog, NotifyRedis:
	case NotifyKafka:
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return errors.New("notify.kafka requires brokers and topic")
		}
	case NotifyRabbitMQ:
		if c.Notify.RabbitMQ.URL == "" || c.Notify.RabbitMQ.Exchange == "" {
			return errors.New("notify.rabbitmq requires url and exchange")
		}
	default:
		return fmt.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
	if c.Notify.Driver == NotifyRedis && !c.Redis.Enabled() {
		return errors.New("notify.driver redis requires redis.addr")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.GRPC.Addr == "" {
		cfg.GRPC.Addr = ":50051"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreMySQL
	}
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.MySQL.LogLevel == "" {
		cfg.MySQL.LogLevel = "warn"
	}
	if cfg.Redis.LockPrefix == "" {
		cfg.Redis.LockPrefix = "bank:lock:"
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = NotifyLog
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "go-bank-ledger"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Ledger.StalenessWindow == 0 {
		cfg.Ledger.StalenessWindow = 24 * time.Hour
	}
	if cfg.Ledger.AuditTimeout == 0 {
		cfg.Ledger.AuditTimeout = 250 * time.Millisecond
	}
	if cfg.Interest.Workers == 0 {
		cfg.Interest.Workers = 8
	}
	if cfg.Interest.LockTTL == 0 {
		cfg.Interest.LockTTL = 5 * time.Minute
	}
	if cfg.Interest.Cron == "" {
		cfg.Interest.Cron = scheduler.DefaultInterestSpec
	}
	if cfg.Withdrawal.Retention == 0 {
		cfg.Withdrawal.Retention = 90 * 24 * time.Hour
	}
	if cfg.Withdrawal.ArchiveCron == "" {
		cfg.Withdrawal.ArchiveCron = scheduler.DefaultArchiveSpec
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// applyEnv 以 BANK_* 覆蓋 YAML 的值
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"GRPC_ADDR":                &cfg.GRPC.Addr,
		"HTTP_ADDR":                &cfg.HTTP.Addr,
		"STORE_DRIVER":             &cfg.Store.Driver,
		"STORE_WAL_PATH":           &cfg.Store.WALPath,
		"MYSQL_HOST":               &cfg.MySQL.Host,
		"MYSQL_USER":               &cfg.MySQL.User,
		"MYSQL_PASSWORD":           &cfg.MySQL.Password,
		"MYSQL_DBNAME":             &cfg.MySQL.DBName,
		"MYSQL_LOG_LEVEL":          &cfg.MySQL.LogLevel,
		"REDIS_ADDR":               &cfg.Redis.Addr,
		"REDIS_PASSWORD":           &cfg.Redis.Password,
		"NOTIFY_DRIVER":            &cfg.Notify.Driver,
		"NOTIFY_REDIS_CHANNEL":     &cfg.Notify.RedisChannel,
		"NOTIFY_KAFKA_TOPIC":       &cfg.Notify.Kafka.Topic,
		"NOTIFY_RABBITMQ_URL":      &cfg.Notify.RabbitMQ.URL,
		"NOTIFY_RABBITMQ_EXCHANGE": &cfg.Notify.RabbitMQ.Exchange,
		"AUTH_SECRET":              &cfg.Auth.Secret,
		"AUTH_ISSUER":              &cfg.Auth.Issuer,
		"INTEREST_CRON":            &cfg.Interest.Cron,
		"WITHDRAWAL_ARCHIVE_CRON":  &cfg.Withdrawal.ArchiveCron,
		"LOG_LEVEL":                &cfg.Log.Level,
		"LOG_FORMAT":               &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup("NOTIFY_KAFKA_BROKERS"); ok {
		cfg.Notify.Kafka.Brokers = splitList(v)
	}

	ints := map[string]*int{
		"MYSQL_PORT":         &cfg.MySQL.Port,
		"REDIS_DB":           &cfg.Redis.DB,
		"STORE_AUDIT_BUFFER": &cfg.Store.AuditBuffer,
		"INTEREST_WORKERS":   &cfg.Interest.Workers,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"LEDGER_STALENESS_WINDOW": &cfg.Ledger.StalenessWindow,
		"LEDGER_AUDIT_TIMEOUT":    &cfg.Ledger.AuditTimeout,
		"INTEREST_LOCK_TTL":       &cfg.Interest.LockTTL,
		"WITHDRAWAL_RETENTION":    &cfg.Withdrawal.Retention,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
