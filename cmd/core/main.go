package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/httpapi"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/scheduler"
	kafka_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	rabbitmq_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/rabbitmq"
	redis_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/redis"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// cleanup 依建立的反序關閉資源
type cleanup []func()

func (c *cleanup) add(f func()) {
	*c = append(*c, f)
}

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers cleanup
	defer func() { closers.run() }()

	// 2. 持久層
	store, checks, err := buildStore(ctx, cfg, zlog, &closers)
	if err != nil {
		zlog.Fatal("failed to init store", zap.Error(err))
	}

	// 3. 鎖與通知 (Redis 設定時優先使用 Redis)
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers.add(func() { redisClient.Close() })
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var locker usecase.Locker = memory_adapter.NewLocker()
	if redisClient != nil {
		locker = redis_adapter.NewLocker(redisClient, cfg.Redis.LockPrefix)
	}

	notifier, err := buildNotifier(cfg, redisClient, zlog, &closers)
	if err != nil {
		zlog.Fatal("failed to init notifier", zap.Error(err))
	}

	// 4. UseCase
	coreUseCase := usecase.NewCoreUseCase(store, locker, notifier, usecase.CoreConfig{
		StalenessWindow:  cfg.Ledger.StalenessWindow,
		ArchiveRetention: cfg.Withdrawal.Retention,
		AuditTimeout:     cfg.Ledger.AuditTimeout,
		Interest: usecase.InterestJobConfig{
			Workers: cfg.Interest.Workers,
			LockTTL: cfg.Interest.LockTTL,
		},
	}, usecase.WithLogger(zlog))

	// 5. gRPC (Driving Adapter)
	auth, err := grpc_adapter.NewAuthenticator(cfg.Auth)
	if err != nil {
		zlog.Fatal("failed to init authenticator", zap.Error(err))
	}
	grpcServer := grpc_adapter.NewGrpcServer(coreUseCase, zlog)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcServer.LoggingInterceptor(), auth.UnaryInterceptor()))
	grpc_adapter.RegisterLedgerServiceServer(s, grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		zlog.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	go func() {
		zlog.Info("starting gRPC server", zap.String("addr", cfg.GRPC.Addr))
		if err := s.Serve(lis); err != nil {
			zlog.Error("gRPC server stopped", zap.Error(err))
			stop()
		}
	}()

	// 6. /metrics /healthz /readyz
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(checks, zlog),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Info("starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("HTTP server stopped", zap.Error(err))
			stop()
		}
	}()

	// 7. 排程
	sched, err := scheduler.New(coreUseCase, cfg.Scheduler(), zlog.Named("scheduler"))
	if err != nil {
		zlog.Fatal("failed to init scheduler", zap.Error(err))
	}
	sched.Start()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		zlog.Warn("scheduler did not stop in time", zap.Error(err))
	}
	s.GracefulStop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("HTTP shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}

// buildStore 依 store.driver 建立 Store，async 稽核時外層包 AuditQueue
func buildStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger, closers *cleanup) (usecase.Store, map[string]httpapi.HealthCheck, error) {
	checks := make(map[string]httpapi.HealthCheck)

	var store usecase.Store
	switch cfg.Store.Driver {
	case config.StoreMySQL:
		dbClient, err := mysql.NewClient(ctx, cfg.MySQL, zlog.Named("mysql"))
		if err != nil {
			return nil, nil, err
		}
		closers.add(func() { dbClient.Close() })
		checks["mysql"] = dbClient.Ping

		mysqlStore := mysql_adapter.NewStore(dbClient)
		if err := mysqlStore.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		zlog.Info("connected to MySQL", zap.String("host", cfg.MySQL.Host), zap.String("db", cfg.MySQL.DBName))
		store = mysqlStore

	case config.StoreMemory:
		var walFile *wal.WAL
		if cfg.Store.WALPath != "" {
			w, err := wal.Open(cfg.Store.WALPath)
			if err != nil {
				return nil, nil, err
			}
			closers.add(func() { w.Close() })
			walFile = w
		}
		memStore, err := memory_adapter.NewStore(walFile)
		if err != nil {
			return nil, nil, err
		}
		if walFile != nil {
			zlog.Info("in-memory store recovered from wal", zap.String("path", walFile.Path()), zap.Int("records", walFile.Records()))
		} else {
			zlog.Info("using in-memory store without wal")
		}
		store = memStore
	}

	if cfg.Store.AuditBuffer > 0 {
		queueCtx, cancel := context.WithCancel(context.Background())
		queue := memory_adapter.NewAuditQueue(store, cfg.Store.AuditBuffer, zlog.Named("audit"))
		queue.Start(queueCtx)
		// 先停止佇列並等待寫完，才關閉底層連線
		closers.add(func() {
			cancel()
			<-queue.Done()
		})
		store = queue
	}
	return store, checks, nil
}

// buildNotifier 依 notify.driver 建立提款通知
func buildNotifier(cfg *config.Config, redisClient *redis.Client, zlog *zap.Logger, closers *cleanup) (usecase.Notifier, error) {
	switch cfg.Notify.Driver {
	case config.NotifyKafka:
		n := kafka_adapter.NewNotifier(cfg.Notify.Kafka, zlog.Named("kafka"))
		closers.add(func() { n.Close() })
		return n, nil
	case config.NotifyRabbitMQ:
		n, err := rabbitmq_adapter.NewNotifier(cfg.Notify.RabbitMQ)
		if err != nil {
			return nil, err
		}
		closers.add(func() { n.Close() })
		return n, nil
	case config.NotifyRedis:
		channel := cfg.Notify.RedisChannel
		if channel == "" {
			channel = redis_adapter.DefaultWithdrawalChannel
		}
		return redis_adapter.NewNotifier(redisClient, channel), nil
	}
	return memory_adapter.NewNotifier(zlog.Named("notify")), nil
}
