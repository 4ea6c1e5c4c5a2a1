// Package domain 通知管道的领域模型与端口定义
package domain

// NotificationType 通知类型
type NotificationType string

const (
	TypeLike          NotificationType = "LIKE"
	TypeComment       NotificationType = "COMMENT"
	TypeCommentReply  NotificationType = "COMMENT_REPLY"
	TypeFollow        NotificationType = "FOLLOW"
	TypePostShare     NotificationType = "POST_SHARE"
	TypeStoryView     NotificationType = "STORY_VIEW"
	TypeMention       NotificationType = "MENTION"
	TypeDirectMessage NotificationType = "DIRECT_MESSAGE"
	TypeOTP           NotificationType = "OTP"
	TypeSecurityAlert NotificationType = "SECURITY_ALERT"
	TypeSystem        NotificationType = "SYSTEM"
)

// AllTypes 全部通知类型，新增类型必须同步加入
var AllTypes = []NotificationType{
	TypeLike,
	TypeComment,
	TypeCommentReply,
	TypeFollow,
	TypePostShare,
	TypeStoryView,
	TypeMention,
	TypeDirectMessage,
	TypeOTP,
	TypeSecurityAlert,
	TypeSystem,
}

// Aggregatable 返回该类型是否参与窗口聚合。
// 时效性强的类型（OTP、私信、安全告警等）必须逐条即时送达。
func (t NotificationType) Aggregatable() bool {
	switch t {
	case TypeLike, TypeComment, TypeCommentReply, TypeFollow, TypePostShare, TypeStoryView:
		return true
	default:
		return false
	}
}

// Priority 通知优先级
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityLow      Priority = "LOW"
)

// 管道各阶段使用的主题
const (
	TopicCritical = "notifications.critical"
	TopicHigh     = "notifications.high"
	TopicLow      = "notifications.low"
	TopicReady    = "notifications.ready"
)

// IngressTopic 返回该优先级的入口主题，未知优先级归入低优先级主题
func (p Priority) IngressTopic() string {
	switch p {
	case PriorityCritical:
		return TopicCritical
	case PriorityHigh:
		return TopicHigh
	default:
		return TopicLow
	}
}

// 事件 metadata 中的保留键
const (
	MetaChannels        = "channels"
	MetaAggregated      = "aggregated"
	MetaAggregatedCount = "aggregatedCount"
	MetaActorIDs        = "actorIds"
	MetaActorNames      = "actorNames"
	MetaActorAvatars    = "actorAvatars"
	MetaFirstEventID    = "firstEventId"
)

// NotificationEvent 流经管道的通知事件，字段与上游约定的 JSON 协议一致。
// ID 在事件创建时分配一次，之后不再变更；timestamp 为毫秒级 Unix 时间。
type NotificationEvent struct {
	ID             string           `json:"id"`
	Type           NotificationType `json:"type"`
	Priority       Priority         `json:"priority"`
	ActorID        string           `json:"actorId"`
	ActorName      string           `json:"actorName"`
	ActorAvatar    string           `json:"actorAvatar"`
	TargetID       string           `json:"targetId"`
	TargetType     string           `json:"targetType"`
	TargetEntityID string           `json:"targetEntityId,omitempty"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ImageURL       string           `json:"imageUrl,omitempty"`
	Timestamp      int64            `json:"timestamp"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
}
