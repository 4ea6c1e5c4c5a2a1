// Package metrics 提供 Prometheus helper，集中定义管道各环节的 counter/gauge/histogram
package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsewire/notifyhub/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	// 各优先级入口消费的事件数
	EventsConsumed *prometheus.CounterVec
	// 发布到各主题的事件数
	EventsPublished *prometheus.CounterVec
	// broker 不可用而转入兜底存储的事件数
	PublishFallbacks prometheus.Counter
	// 窗口冲刷次数，按触发原因区分（threshold, sweep）
	WindowFlushes *prometheus.CounterVec
	// 进入聚合窗口的事件数
	EventsAggregated prometheus.Counter
	// 各渠道投递结果（success, exhausted, dropped）
	DeliveryAttempts *prometheus.CounterVec
	// 各渠道死信数
	DeadLetters *prometheus.CounterVec
	// 兜底存储待补发条数
	FallbackPending prometheus.Gauge
	// 兜底存储失败桶条数
	FallbackFailed prometheus.Gauge
	// 入口管道处理耗时
	PipelineDuration *prometheus.HistogramVec
}

// New 创建指标实例。服务名中的连字符替换为下划线以满足指标命名规则。
func New(serviceName string) *Metrics {
	ns := strings.ReplaceAll(serviceName, "-", "_")
	return &Metrics{
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_consumed_total",
			Help:      "Total events consumed from ingress topics",
		}, []string{"tier"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_published_total",
			Help:      "Total events published to the broker",
		}, []string{"topic"}),
		PublishFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "publish_fallbacks_total",
			Help:      "Total events diverted to the fallback store",
		}),
		WindowFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "window_flushes_total",
			Help:      "Total aggregation window flushes by trigger",
		}, []string{"trigger"}),
		EventsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_aggregated_total",
			Help:      "Total events absorbed into aggregation windows",
		}),
		DeliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "delivery_attempts_total",
			Help:      "Total delivery outcomes by channel",
		}, []string{"channel", "outcome"}),
		DeadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "dead_letters_total",
			Help:      "Total events routed to dead letter topics",
		}, []string{"channel"}),
		FallbackPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "fallback_pending",
			Help:      "Fallback records waiting for redelivery",
		}),
		FallbackFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "fallback_failed",
			Help:      "Fallback records that exhausted redelivery attempts",
		}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "pipeline_duration_seconds",
			Help:      "Ingress pipeline processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	metrics := []prometheus.Collector{
		m.EventsConsumed,
		m.EventsPublished,
		m.PublishFallbacks,
		m.WindowFlushes,
		m.EventsAggregated,
		m.DeliveryAttempts,
		m.DeadLetters,
		m.FallbackPending,
		m.FallbackFailed,
		m.PipelineDuration,
	}

	for _, metric := range metrics {
		if err := prometheus.DefaultRegisterer.Register(metric); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// Handler 返回 Prometheus 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
