package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SummaryMessage 为聚合通知生成摘要文案。
// 未覆盖的类型回落到通用文案，文案生成永不失败。
func SummaryMessage(t NotificationType, firstActorName string, others int) string {
	if firstActorName == "" {
		firstActorName = "Someone"
	}

	var action string
	switch t {
	case TypeLike:
		action = "liked your post"
	case TypeComment:
		action = "commented on your post"
	case TypeCommentReply:
		action = "replied to your comment"
	case TypeFollow:
		action = "started following you"
	case TypePostShare:
		action = "shared your post"
	case TypeStoryView:
		action = "viewed your story"
	case TypeMention:
		action = "mentioned you"
	case TypeDirectMessage:
		action = "sent you a message"
	case TypeOTP, TypeSecurityAlert, TypeSystem:
		action = "sent you a notification"
	default:
		action = "sent you a notification"
	}

	if others <= 0 {
		return fmt.Sprintf("%s %s", firstActorName, action)
	}
	return fmt.Sprintf("%s and %d %s %s", firstActorName, others, pluralOther(others), action)
}

func pluralOther(n int) string {
	if n == 1 {
		return "other"
	}
	return "others"
}

// BuildSummary 将窗口快照合成为一条聚合通知。
// 基础字段取自窗口首个事件，actor 字段取首个行为者，ID 重新分配。
func BuildSummary(snap WindowSnapshot, now time.Time) NotificationEvent {
	out := snap.First
	lead := snap.Actors[0]
	count := len(snap.Actors)

	actorIDs := make([]string, 0, count)
	names := make([]string, 0, count)
	avatars := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for _, a := range snap.Actors {
		actorIDs = append(actorIDs, a.ID)
		// 展示用名单按显示名去重，保持首次出现顺序
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		names = append(names, a.Name)
		avatars = append(avatars, a.Avatar)
	}

	out.ID = uuid.New().String()
	out.ActorID = lead.ID
	out.ActorName = lead.Name
	out.ActorAvatar = lead.Avatar
	out.Message = SummaryMessage(out.Type, lead.Name, count-1)
	out.Timestamp = now.UnixMilli()

	meta := make(map[string]any, len(snap.First.Metadata)+6)
	for k, v := range snap.First.Metadata {
		meta[k] = v
	}
	meta[MetaAggregated] = true
	meta[MetaAggregatedCount] = count
	meta[MetaActorIDs] = actorIDs
	meta[MetaActorNames] = names
	meta[MetaActorAvatars] = avatars
	meta[MetaFirstEventID] = snap.First.ID
	out.Metadata = meta

	return out
}
