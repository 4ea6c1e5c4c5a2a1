package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

func TestChannelsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority domain.Priority
		want     []domain.Channel
	}{
		{
			name:     "critical fans out everywhere",
			priority: domain.PriorityCritical,
			want:     []domain.Channel{domain.ChannelPush, domain.ChannelEmail, domain.ChannelSMS},
		},
		{
			name:     "high skips sms",
			priority: domain.PriorityHigh,
			want:     []domain.Channel{domain.ChannelPush, domain.ChannelEmail},
		},
		{
			name:     "low is push only",
			priority: domain.PriorityLow,
			want:     []domain.Channel{domain.ChannelPush},
		},
		{
			name:     "unknown falls back to push",
			priority: domain.Priority("URGENT"),
			want:     []domain.Channel{domain.ChannelPush},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.ChannelsFor(tt.priority))
		})
	}
}

func TestAttachAndAllowsChannel(t *testing.T) {
	t.Parallel()

	e := &domain.NotificationEvent{ID: "evt-1", Priority: domain.PriorityHigh}
	e.AttachChannels(domain.ChannelsFor(e.Priority))

	assert.True(t, e.AllowsChannel(domain.ChannelPush))
	assert.True(t, e.AllowsChannel(domain.ChannelEmail))
	assert.False(t, e.AllowsChannel(domain.ChannelSMS))
}

func TestAllowsChannelAfterJSONRoundTrip(t *testing.T) {
	t.Parallel()

	e := &domain.NotificationEvent{ID: "evt-1", Priority: domain.PriorityCritical}
	e.AttachChannels(domain.ChannelsFor(e.Priority))

	payload, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded domain.NotificationEvent
	require.NoError(t, json.Unmarshal(payload, &decoded))

	// After a broker round trip the allow-list arrives as []any.
	assert.True(t, decoded.AllowsChannel(domain.ChannelPush))
	assert.True(t, decoded.AllowsChannel(domain.ChannelEmail))
	assert.True(t, decoded.AllowsChannel(domain.ChannelSMS))
}

func TestAllowsChannelMissingList(t *testing.T) {
	t.Parallel()

	e := &domain.NotificationEvent{ID: "evt-1"}
	assert.False(t, e.AllowsChannel(domain.ChannelPush), "unrouted events must not be delivered")

	e.Metadata = map[string]any{"other": "value"}
	assert.False(t, e.AllowsChannel(domain.ChannelPush))
}
