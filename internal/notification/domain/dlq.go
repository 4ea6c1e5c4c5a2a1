package domain

import (
	"strings"
	"time"
)

// DLQTopicPrefix 死信主题前缀，渠道名小写作为后缀
const DLQTopicPrefix = "notifications.dlq."

// DLQRetention 死信主题的消息保留时长
const DLQRetention = 30 * 24 * time.Hour

// DLQTopic 返回渠道对应的死信主题
func DLQTopic(c Channel) string {
	return DLQTopicPrefix + strings.ToLower(string(c))
}

// DLQEnvelope 死信信封，一经写入不再变更
type DLQEnvelope struct {
	Event             NotificationEvent `json:"event"`
	FailedChannel     Channel           `json:"failedChannel"`
	ErrorMessage      string            `json:"errorMessage"`
	AttemptCount      int               `json:"attemptCount"`
	FailedAt          time.Time         `json:"failedAt"`
	OriginalTimestamp int64             `json:"originalTimestamp"`
}

// NewDLQEnvelope 构造死信信封
func NewDLQEnvelope(e NotificationEvent, c Channel, attempts int, cause error) DLQEnvelope {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return DLQEnvelope{
		Event:             e,
		FailedChannel:     c,
		ErrorMessage:      msg,
		AttemptCount:      attempts,
		FailedAt:          time.Now(),
		OriginalTimestamp: e.Timestamp,
	}
}
