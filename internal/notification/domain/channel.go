package domain

// Channel 投递渠道
type Channel string

const (
	ChannelPush  Channel = "PUSH"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// ChannelsFor 按优先级路由投递渠道，未知优先级只走推送
func ChannelsFor(p Priority) []Channel {
	switch p {
	case PriorityCritical:
		return []Channel{ChannelPush, ChannelEmail, ChannelSMS}
	case PriorityHigh:
		return []Channel{ChannelPush, ChannelEmail}
	case PriorityLow:
		return []Channel{ChannelPush}
	default:
		return []Channel{ChannelPush}
	}
}

// AttachChannels 将渠道白名单写入事件 metadata
func (e *NotificationEvent) AttachChannels(channels []Channel) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, 1)
	}
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}
	e.Metadata[MetaChannels] = names
}

// AllowsChannel 检查事件的渠道白名单是否包含 c。
// 白名单缺失按不允许处理，未经路由的事件不投递任何渠道。
func (e *NotificationEvent) AllowsChannel(c Channel) bool {
	if e.Metadata == nil {
		return false
	}
	raw, ok := e.Metadata[MetaChannels]
	if !ok {
		return false
	}

	switch list := raw.(type) {
	case []string:
		for _, name := range list {
			if name == string(c) {
				return true
			}
		}
	case []any:
		// JSON 反序列化后白名单是 []any
		for _, item := range list {
			if name, ok := item.(string); ok && name == string(c) {
				return true
			}
		}
	}
	return false
}
