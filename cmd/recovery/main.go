// Package main 兜底补发服务启动入口。
// 轮询 broker 不可用期间落库的事件，按原主题补发回 Kafka，
// 超过补发上限的记录进入失败桶等待人工处理。
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
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/persistence/mysql"
	httpserver "github.com/pulsewire/notifyhub/internal/notification/interfaces/http"
	"github.com/pulsewire/notifyhub/pkg/config"
	"github.com/pulsewire/notifyhub/pkg/db"
	"github.com/pulsewire/notifyhub/pkg/logger"
	"github.com/pulsewire/notifyhub/pkg/metrics"
	"github.com/pulsewire/notifyhub/pkg/middleware"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

var configPath = flag.String("config", "configs/recovery.toml", "config file path")

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
		if err := database.AutoMigrate(&mysql.FallbackModel{}); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Kafka
	kafkaCfg := &mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		Replication:    cfg.Kafka.Replication,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	topics := mq.NewTopicManager(kafkaCfg)
	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()

	// 6. Application
	fallbackRepo := mysql.NewFallbackRepository(database.DB)
	recovery := application.NewRecoveryService(fallbackRepo, producer,
		cfg.Fallback.MaxRetries, cfg.Fallback.BatchSize, cfg.Fallback.PollInterval(), m, log)

	// 7. Interfaces
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.GinRecovery(), middleware.GinLogging())

	ops := httpserver.NewOpsHandler(cfg.ServiceName, fallbackRepo, cfg.Fallback.MaxRetries,
		httpserver.ReadinessProbe{Name: "mysql", Check: database.Ping},
		httpserver.ReadinessProbe{Name: "kafka", Check: func(ctx context.Context) error {
			_, err := topics.Exists(ctx, domain.TopicReady)
			return err
		}},
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

	// 8. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return recovery.Start(ctx) })

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
			slog.Info("shutting down recovery...")
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGrace)*time.Second)
		defer shutdownCancel()

		httpServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("recovery exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("recovery stopped")
}
