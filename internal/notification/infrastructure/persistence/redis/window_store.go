// Package redis 提供聚合窗口存储的 Redis 实现。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

const (
	keyPrefix  = "notify:window:"
	fieldFirst = "first"

	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// WindowStore 聚合窗口的 Redis 存储。
// 每个窗口两把键：actors 有序集合记录去重后的行为者及到达顺序，
// meta 哈希保存首个事件与各行为者的展示信息；同代窗口另有一个
// 代索引集合供扫描器枚举。三把键同一 TTL，每次触达一并续期。
// 所有访问经过熔断器，Redis 连续故障时快速失败，
// 上层按"立即下发"降级。
type WindowStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewWindowStore 创建窗口存储，TTL 为窗口时长加冗余量
func NewWindowStore(client redis.UniversalClient, windowDuration time.Duration) *WindowStore {
	return &WindowStore{
		client: client,
		ttl:    windowDuration + domain.WindowTTLPadding,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "window-store",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			Timeout: breakerTimeout,
		}),
	}
}

// Touch 将事件并入窗口并返回去重后的行为者数。
// 整个写入在一个事务管道内完成：行为者按首次到达的时间戳排序，
// 重复到达不改变已有排位，首个事件一经写入不再覆盖。
func (s *WindowStore) Touch(ctx context.Context, key domain.WindowKey, e *domain.NotificationEvent) (int64, error) {
	firstJSON, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal window event: %w", err)
	}
	actorJSON, err := json.Marshal(domain.Actor{ID: e.ActorID, Name: e.ActorName, Avatar: e.ActorAvatar})
	if err != nil {
		return 0, fmt.Errorf("marshal window actor: %w", err)
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return 0, fmt.Errorf("marshal window key: %w", err)
	}

	actors, meta, gen := s.actorsKey(key), s.metaKey(key), s.genKey(key.WindowID)
	arrival := float64(time.Now().UnixMilli())

	result, err := s.breaker.Execute(func() (any, error) {
		var card *redis.IntCmd
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZAddNX(ctx, actors, redis.Z{Score: arrival, Member: e.ActorID})
			pipe.HSetNX(ctx, meta, fieldFirst, firstJSON)
			pipe.HSetNX(ctx, meta, actorField(e.ActorID), actorJSON)
			pipe.SAdd(ctx, gen, keyJSON)
			pipe.Expire(ctx, actors, s.ttl)
			pipe.Expire(ctx, meta, s.ttl)
			pipe.Expire(ctx, gen, s.ttl)
			card = pipe.ZCard(ctx, actors)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return card.Val(), nil
	})
	if err != nil {
		return 0, fmt.Errorf("touch window %s: %w", actors, err)
	}
	return result.(int64), nil
}

// Consume 原子地取出并删除窗口内容。
// 读取与删除同属一个事务，并发冲刷同一窗口时只有第一个调用
// 取到内容，其余得到空快照。
func (s *WindowStore) Consume(ctx context.Context, key domain.WindowKey) (domain.WindowSnapshot, error) {
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return domain.WindowSnapshot{}, fmt.Errorf("marshal window key: %w", err)
	}

	actors, meta, gen := s.actorsKey(key), s.metaKey(key), s.genKey(key.WindowID)

	result, err := s.breaker.Execute(func() (any, error) {
		var (
			members *redis.StringSliceCmd
			fields  *redis.MapStringStringCmd
		)
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			members = pipe.ZRange(ctx, actors, 0, -1)
			fields = pipe.HGetAll(ctx, meta)
			pipe.Del(ctx, actors, meta)
			pipe.SRem(ctx, gen, keyJSON)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return consumeResult{members: members.Val(), fields: fields.Val()}, nil
	})
	if err != nil {
		return domain.WindowSnapshot{}, fmt.Errorf("consume window %s: %w", actors, err)
	}

	raw := result.(consumeResult)
	if len(raw.members) == 0 {
		return domain.WindowSnapshot{Key: key}, nil
	}
	return s.toSnapshot(ctx, key, raw)
}

// ListGeneration 枚举指定代尚未冲刷的窗口键。
// 已过期窗口的残留索引项由后续 Consume 顺带清除。
func (s *WindowStore) ListGeneration(ctx context.Context, windowID int64) ([]domain.WindowKey, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		return s.client.SMembers(ctx, s.genKey(windowID)).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("list generation %d windows: %w", windowID, err)
	}

	members := result.([]string)
	keys := make([]domain.WindowKey, 0, len(members))
	for _, raw := range members {
		var key domain.WindowKey
		if err := json.Unmarshal([]byte(raw), &key); err != nil {
			slog.WarnContext(ctx, "skipping malformed window index entry", "entry", raw, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

type consumeResult struct {
	members []string
	fields  map[string]string
}

func (s *WindowStore) toSnapshot(ctx context.Context, key domain.WindowKey, raw consumeResult) (domain.WindowSnapshot, error) {
	firstJSON, ok := raw.fields[fieldFirst]
	if !ok {
		return domain.WindowSnapshot{}, fmt.Errorf("window %s has actors but no first event", s.actorsKey(key))
	}
	var first domain.NotificationEvent
	if err := json.Unmarshal([]byte(firstJSON), &first); err != nil {
		return domain.WindowSnapshot{}, fmt.Errorf("unmarshal first window event: %w", err)
	}

	actors := make([]domain.Actor, 0, len(raw.members))
	for _, id := range raw.members {
		actorJSON, ok := raw.fields[actorField(id)]
		if !ok {
			// 展示信息缺失不影响计数，行为者以裸 ID 计入
			actors = append(actors, domain.Actor{ID: id})
			continue
		}
		var actor domain.Actor
		if err := json.Unmarshal([]byte(actorJSON), &actor); err != nil {
			slog.WarnContext(ctx, "unmarshal window actor failed", "actor_id", id, "error", err)
			actors = append(actors, domain.Actor{ID: id})
			continue
		}
		actors = append(actors, actor)
	}

	return domain.WindowSnapshot{Key: key, First: first, Actors: actors}, nil
}

func (s *WindowStore) actorsKey(key domain.WindowKey) string {
	return fmt.Sprintf("%s%s:%s:%s:%d:actors", keyPrefix, key.TargetID, key.Type, key.EntityID, key.WindowID)
}

func (s *WindowStore) metaKey(key domain.WindowKey) string {
	return fmt.Sprintf("%s%s:%s:%s:%d:meta", keyPrefix, key.TargetID, key.Type, key.EntityID, key.WindowID)
}

func (s *WindowStore) genKey(windowID int64) string {
	return fmt.Sprintf("%sgen:%d", keyPrefix, windowID)
}

func actorField(actorID string) string {
	return "actor:" + actorID
}
