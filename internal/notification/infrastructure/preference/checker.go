// Package preference 提供基于 Redis 的通知偏好查询。
package preference

import (
	"context"
	"fmt"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/pkg/cache"
)

const keyPrefix = "prefs:"

// Checker 按用户哈希查询通知偏好。
// 键 prefs:<userID>，field 为通知类型，值 "0" 或 "false" 表示关闭；
// 未设置的类型默认接收。
type Checker struct {
	cache *cache.Cache
}

// NewChecker 创建偏好查询器
func NewChecker(c *cache.Cache) *Checker {
	return &Checker{cache: c}
}

// Allows 返回目标用户是否接收该类型通知。
// 查询失败返回 (true, err)，调用方按放行处理。
func (c *Checker) Allows(ctx context.Context, targetID string, t domain.NotificationType) (bool, error) {
	val, err := c.cache.HGet(ctx, keyPrefix+targetID, string(t))
	if err != nil {
		return true, fmt.Errorf("load preferences for %s: %w", targetID, err)
	}

	switch val {
	case "0", "false":
		return false, nil
	default:
		return true, nil
	}
}
