package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clientmanager/backend/internal/config"
	"clientmanager/backend/internal/health"
	"clientmanager/backend/internal/inbound"
	"clientmanager/backend/internal/logger"
	"clientmanager/backend/internal/monitoring"
	"clientmanager/backend/internal/parser"
	"clientmanager/backend/internal/service"
	"clientmanager/backend/internal/smtp"
	"clientmanager/backend/internal/storage"
	"clientmanager/backend/internal/storage/memory"
	"clientmanager/backend/internal/storage/postgres"
	"clientmanager/backend/internal/storage/redis"
	httptransport "clientmanager/backend/internal/transport/http"
)

// main 启动入站 SMTP、邮件处理循环与运维 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Service:     "clientmanager",
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting clientmanager server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	base, err := openStore(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	store := storage.Scoped(base)
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}
	}()

	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	agents, err := parser.NewRegistry(cfg.Ingest.Agents)
	if err != nil {
		log.Fatal("invalid forward agent configuration", zap.Error(err))
	}

	converter := service.NewMessageConverter(store, agents, cfg.Ingest.ReceiverRole, log)
	converter.SetMetrics(metrics)
	matcher := service.NewInquiryMatcher(store, nil, log)

	// 配置了 Redis 时通过分布式锁避免多实例并发处理同一封邮件
	if cfg.Redis.Address != "" {
		rdb, err := redis.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to initialize redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		matcher.SetLocker(redis.NewLocker(rdb, cfg.Redis.LockTTL))
		healthChecker.AddPinger("redis", rdb, 2*time.Second)
		log.Info("message lock enabled", zap.Duration("ttl", cfg.Redis.LockTTL))
	}

	mailbox := inbound.NewMailbox()
	ingestor := service.NewIngestor(mailbox, store, converter, matcher, log)
	ingestor.SetMetrics(metrics)
	ingestor.SetRetryInterval(cfg.Ingest.RetryInterval)

	smtpBackend := smtp.NewBackend(mailbox, &cfg.SMTP, log)
	smtpBackend.SetMetrics(metrics)
	smtpServer := smtp.NewServer(smtpBackend, &cfg.SMTP)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Store:   store,
		Health:  healthChecker,
		Metrics: metrics,
		Logger:  log,
	})
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
			zap.Strings("accepted_domains", cfg.SMTP.AcceptedDomains),
		)
		if err := smtpServer.ListenAndServe(); err != nil && groupCtx.Err() == nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 邮件处理 goroutine，按到达顺序逐封处理
	group.Go(func() error {
		log.Info("starting ingestor", zap.Duration("retry_interval", cfg.Ingest.RetryInterval))
		return ingestor.Run(groupCtx)
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// openStore 根据数据库配置选择 GORM 存储或内存存储
func openStore(cfg *config.DatabaseConfig, log *zap.Logger) (storage.Store, error) {
	if cfg.Type == "" {
		log.Warn("using memory storage (development mode), data is lost on restart")
		return memory.NewStore(), nil
	}

	store, err := postgres.Open(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage",
		zap.String("type", cfg.Type),
		zap.Bool("auto_migrate", cfg.AutoMigrate),
	)
	return store, nil
}
