// Package http 提供运维 HTTP 端点。
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

// ReadinessProbe 就绪检查项
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler 运维处理器：存活、就绪与兜底积压查询。
// 业务流量全部走 Kafka，HTTP 面只服务探针与运维。
type OpsHandler struct {
	service    string
	fallback   domain.FallbackStore
	maxRetries int
	probes     []ReadinessProbe
}

// NewOpsHandler 创建运维处理器。
// fallback 为 nil 时不暴露兜底积压端点。
func NewOpsHandler(service string, fallback domain.FallbackStore, maxRetries int, probes ...ReadinessProbe) *OpsHandler {
	return &OpsHandler{
		service:    service,
		fallback:   fallback,
		maxRetries: maxRetries,
		probes:     probes,
	}
}

// RegisterRoutes 注册路由
func (h *OpsHandler) RegisterRoutes(router *gin.Engine) {
	sys := router.Group("/sys")
	{
		sys.GET("/health", h.Health)
		sys.GET("/ready", h.Ready)
		if h.fallback != nil {
			sys.GET("/fallback/stats", h.FallbackStats)
		}
	}
}

// Health 存活探针
func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "UP",
		"service":   h.service,
		"timestamp": time.Now().Unix(),
	})
}

// Ready 就绪探针，任一依赖不可用即返回 503
func (h *OpsHandler) Ready(c *gin.Context) {
	for _, probe := range h.probes {
		if err := probe.Check(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "NOT_READY",
				"failed": probe.Name,
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "READY"})
}

// FallbackStats 兜底存储积压概览
func (h *OpsHandler) FallbackStats(c *gin.Context) {
	ctx := c.Request.Context()

	pending, err := h.fallback.CountPending(ctx, h.maxRetries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	failed, err := h.fallback.CountFailed(ctx, h.maxRetries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":     pending,
		"failed":      failed,
		"max_retries": h.maxRetries,
	})
}
