package domain

import "time"

// WindowTTLPadding 窗口 TTL 在窗口时长之上的冗余量，
// 留给扫描器在窗口关闭后冲刷残留窗口的时间
const WindowTTLPadding = 10 * time.Second

// WindowID 返回 now 所属的窗口代编号
func WindowID(now time.Time, duration time.Duration) int64 {
	return now.UnixMilli() / duration.Milliseconds()
}

// WindowKey 聚合窗口的唯一标识。
// 同一接收者、同一类型、同一实体的事件落入同一代窗口。
type WindowKey struct {
	TargetID string
	Type     NotificationType
	EntityID string
	WindowID int64
}

// NewWindowKey 从事件构造窗口标识
func NewWindowKey(e *NotificationEvent, windowID int64) WindowKey {
	return WindowKey{
		TargetID: e.TargetID,
		Type:     e.Type,
		EntityID: e.TargetEntityID,
		WindowID: windowID,
	}
}

// Actor 聚合窗口中记录的行为者
type Actor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// WindowSnapshot 一次冲刷取走的窗口内容，Actors 按首次到达顺序排列
type WindowSnapshot struct {
	Key    WindowKey
	First  NotificationEvent
	Actors []Actor
}

// Empty 返回窗口是否已被并发冲刷取走
func (s WindowSnapshot) Empty() bool {
	return len(s.Actors) == 0
}
