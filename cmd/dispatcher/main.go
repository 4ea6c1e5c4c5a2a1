// Package main 通知分发服务启动入口。
// 按优先级消费三个入口主题，完成偏好过滤、窗口聚合与渠道路由，
// 将就绪事件发布到投递主题。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/pulsewire/notifyhub/internal/notification/application"
	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/messaging"
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/persistence/mysql"
	redisrepo "github.com/pulsewire/notifyhub/internal/notification/infrastructure/persistence/redis"
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/preference"
	"github.com/pulsewire/notifyhub/internal/notification/interfaces/consumer"
	httpserver "github.com/pulsewire/notifyhub/internal/notification/interfaces/http"
	"github.com/pulsewire/notifyhub/pkg/cache"
	"github.com/pulsewire/notifyhub/pkg/config"
	"github.com/pulsewire/notifyhub/pkg/db"
	"github.com/pulsewire/notifyhub/pkg/logger"
	"github.com/pulsewire/notifyhub/pkg/metrics"
	"github.com/pulsewire/notifyhub/pkg/middleware"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

var configPath = flag.String("config", "configs/dispatcher.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get()

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// 4. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(&mysql.FallbackModel{}, &mysql.AuditModel{}); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	// 6. Kafka
	kafkaCfg := &mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		Replication:    cfg.Kafka.Replication,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}

	topics := mq.NewTopicManager(kafkaCfg)
	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = topics.Ensure(ensureCtx,
		mq.TopicSpec{Topic: domain.TopicCritical, Partitions: cfg.Tiers.Critical.Partitions, ReplicationFactor: cfg.Kafka.Replication},
		mq.TopicSpec{Topic: domain.TopicHigh, Partitions: cfg.Tiers.High.Partitions, ReplicationFactor: cfg.Kafka.Replication},
		mq.TopicSpec{Topic: domain.TopicLow, Partitions: cfg.Tiers.Low.Partitions, ReplicationFactor: cfg.Kafka.Replication},
		mq.TopicSpec{Topic: domain.TopicReady, Partitions: cfg.Kafka.ReadyPartitions, ReplicationFactor: cfg.Kafka.Replication},
	)
	ensureCancel()
	if err != nil {
		slog.Error("failed to ensure kafka topics", "error", err)
		os.Exit(1)
	}

	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()

	// 7. Repositories
	fallbackRepo := mysql.NewFallbackRepository(database.DB)
	auditRepo := mysql.NewAuditRepository(database.DB)
	windowStore := redisrepo.NewWindowStore(redisCache.GetClient(), cfg.Window.Duration())
	prefs := preference.NewChecker(redisCache)

	// 8. Messaging
	health := mq.NewHealthTracker(cfg.Fallback.RetryAfter())
	publisher := messaging.NewPublisher(producer, health, fallbackRepo, m, log)

	// 9. Application
	auditWriter := application.NewAuditWriter(auditRepo, 0, log)
	aggregator := application.NewAggregator(windowStore, cfg.Window.Duration(), cfg.Window.MaxBatchSize, m, log)
	pipeline := application.NewPipelineService(prefs, aggregator, publisher, auditWriter, m, log)
	sweeper := application.NewSweeper(aggregator, pipeline, cfg.Window.SweepInterval(), log)

	// 10. Interfaces
	criticalGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicCritical, cfg.Tiers.Critical.GroupID, cfg.Tiers.Critical.Concurrency)
	highGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicHigh, cfg.Tiers.High.GroupID, cfg.Tiers.High.Concurrency)
	lowGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicLow, cfg.Tiers.Low.GroupID, cfg.Tiers.Low.Concurrency)

	criticalHandler := consumer.NewTierHandler(pipeline, "critical", log)
	highHandler := consumer.NewTierHandler(pipeline, "high", log)
	lowHandler := consumer.NewTierHandler(pipeline, "low", log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.GinRecovery(), middleware.GinLogging())

	ops := httpserver.NewOpsHandler(cfg.ServiceName, fallbackRepo, cfg.Fallback.MaxRetries,
		httpserver.ReadinessProbe{Name: "redis", Check: redisCache.Ping},
		httpserver.ReadinessProbe{Name: "mysql", Check: database.Ping},
	)
	ops.RegisterRoutes(router)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 11. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return auditWriter.Run(ctx) })
	g.Go(func() error { return sweeper.Start(ctx) })
	g.Go(func() error { return criticalGroup.Run(ctx, criticalHandler.Handle) })
	g.Go(func() error { return highGroup.Run(ctx, highHandler.Handle) })
	g.Go(func() error { return lowGroup.Run(ctx, lowHandler.Handle) })

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down dispatcher...")
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGrace)*time.Second)
		defer shutdownCancel()

		// 先关 reader 让阻塞中的拉取返回，在途消息在宽限期内处理完成
		criticalGroup.Close()
		highGroup.Close()
		lowGroup.Close()
		httpServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("dispatcher exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("dispatcher stopped")
}
