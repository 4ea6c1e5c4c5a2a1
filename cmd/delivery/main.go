// Package main 通知投递服务启动入口。
// 按渠道独立消费就绪主题，执行带退避的发送重试，
// 耗尽后将事件写入渠道死信主题。
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
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/sender"
	"github.com/pulsewire/notifyhub/internal/notification/interfaces/consumer"
	httpserver "github.com/pulsewire/notifyhub/internal/notification/interfaces/http"
	"github.com/pulsewire/notifyhub/pkg/config"
	"github.com/pulsewire/notifyhub/pkg/logger"
	"github.com/pulsewire/notifyhub/pkg/metrics"
	"github.com/pulsewire/notifyhub/pkg/middleware"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

var configPath = flag.String("config", "configs/delivery.toml", "config file path")

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

	// 4. Kafka
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
		mq.TopicSpec{Topic: domain.TopicReady, Partitions: cfg.Kafka.ReadyPartitions, ReplicationFactor: cfg.Kafka.Replication},
	)
	ensureCancel()
	if err != nil {
		slog.Error("failed to ensure kafka topics", "error", err)
		os.Exit(1)
	}

	producer := mq.NewProducer(kafkaCfg)
	defer producer.Close()

	// 5. Senders
	emailSender := sender.NewEmailSender(cfg.Senders.Email.Host, cfg.Senders.Email.Port, cfg.Senders.Email.From)
	smsSender := sender.NewSMSSender(cfg.Senders.SMS.Endpoint, cfg.Senders.SMS.From)
	pushSender := sender.NewPushSender()

	// 6. Application
	// 死信主题由 emitter 在首次投递前按需创建
	dlq := messaging.NewDLQEmitter(producer, topics, cfg.Delivery.DLQPartitions, cfg.Kafka.Replication, log)

	emailDelivery := application.NewDeliveryService(emailSender, dlq, cfg.Retry.RetryFor(string(domain.ChannelEmail)), m, log)
	smsDelivery := application.NewDeliveryService(smsSender, dlq, cfg.Retry.RetryFor(string(domain.ChannelSMS)), m, log)
	pushDelivery := application.NewFireAndForgetDelivery(pushSender, m, log)

	// 7. Interfaces
	emailGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicReady, cfg.Delivery.Email.GroupID, cfg.Delivery.Email.Concurrency)
	smsGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicReady, cfg.Delivery.SMS.GroupID, cfg.Delivery.SMS.Concurrency)
	pushGroup := mq.NewConsumerGroup(kafkaCfg, domain.TopicReady, cfg.Delivery.Push.GroupID, cfg.Delivery.Push.Concurrency)

	emailHandler := consumer.NewDeliveryHandler(emailDelivery, log.With("channel", "email"))
	smsHandler := consumer.NewDeliveryHandler(smsDelivery, log.With("channel", "sms"))
	pushHandler := consumer.NewDeliveryHandler(pushDelivery, log.With("channel", "push"))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.GinRecovery(), middleware.GinLogging())

	ops := httpserver.NewOpsHandler(cfg.ServiceName, nil, 0,
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

	g.Go(func() error { return emailGroup.Run(ctx, emailHandler.Handle) })
	g.Go(func() error { return smsGroup.Run(ctx, smsHandler.Handle) })
	g.Go(func() error { return pushGroup.Run(ctx, pushHandler.Handle) })

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
			slog.Info("shutting down delivery...")
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGrace)*time.Second)
		defer shutdownCancel()

		emailGroup.Close()
		smsGroup.Close()
		pushGroup.Close()
		httpServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("delivery exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("delivery stopped")
}
