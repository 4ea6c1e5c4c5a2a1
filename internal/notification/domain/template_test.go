package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

func TestSummaryMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		typ    domain.NotificationType
		first  string
		others int
		want   string
	}{
		{name: "single like", typ: domain.TypeLike, first: "Alice", others: 0, want: "Alice liked your post"},
		{name: "one other", typ: domain.TypeLike, first: "Alice", others: 1, want: "Alice and 1 other liked your post"},
		{name: "many others", typ: domain.TypeLike, first: "Alice", others: 49, want: "Alice and 49 others liked your post"},
		{name: "comment", typ: domain.TypeComment, first: "Bob", others: 2, want: "Bob and 2 others commented on your post"},
		{name: "follow", typ: domain.TypeFollow, first: "Cleo", others: 0, want: "Cleo started following you"},
		{name: "story view", typ: domain.TypeStoryView, first: "Dana", others: 3, want: "Dana and 3 others viewed your story"},
		{name: "unknown type falls back", typ: domain.NotificationType("PROMO"), first: "Eve", others: 0, want: "Eve sent you a notification"},
		{name: "missing actor name", typ: domain.TypeLike, first: "", others: 0, want: "Someone liked your post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.SummaryMessage(tt.typ, tt.first, tt.others))
		})
	}
}

// Every declared type must produce a message; adding a type without a
// template arm shows up here instead of as a runtime fallback surprise.
func TestSummaryMessageCoversAllTypes(t *testing.T) {
	t.Parallel()

	for _, typ := range domain.AllTypes {
		msg := domain.SummaryMessage(typ, "Alice", 1)
		assert.NotEmpty(t, msg, "type %s", typ)
		assert.Contains(t, msg, "Alice", "type %s", typ)
	}
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	first := domain.NotificationEvent{
		ID:             "evt-1",
		Type:           domain.TypeLike,
		Priority:       domain.PriorityLow,
		ActorID:        "u1",
		ActorName:      "Alice",
		TargetID:       "t1",
		TargetType:     "POST",
		TargetEntityID: "post-9",
		Title:          "New like",
		Timestamp:      1700000000000,
		Metadata:       map[string]any{"postSlug": "hello-world"},
	}
	snap := domain.WindowSnapshot{
		Key:   domain.WindowKey{TargetID: "t1", Type: domain.TypeLike, EntityID: "post-9", WindowID: 42},
		First: first,
		Actors: []domain.Actor{
			{ID: "u1", Name: "Alice", Avatar: "a1.png"},
			{ID: "u2", Name: "Bob", Avatar: "a2.png"},
			{ID: "u3", Name: "Bob", Avatar: "a3.png"},
		},
	}

	now := time.UnixMilli(1700000100000)
	out := domain.BuildSummary(snap, now)

	assert.NotEqual(t, first.ID, out.ID, "summary gets a fresh identity")
	assert.Equal(t, domain.TypeLike, out.Type)
	assert.Equal(t, "t1", out.TargetID)
	assert.Equal(t, "u1", out.ActorID, "lead actor is the first arrival")
	assert.Equal(t, "Alice and 2 others liked your post", out.Message)
	assert.Equal(t, now.UnixMilli(), out.Timestamp)

	require.NotNil(t, out.Metadata)
	assert.Equal(t, true, out.Metadata[domain.MetaAggregated])
	assert.Equal(t, 3, out.Metadata[domain.MetaAggregatedCount], "count is distinct actor ids, not distinct names")
	assert.Equal(t, []string{"u1", "u2", "u3"}, out.Metadata[domain.MetaActorIDs])
	assert.Equal(t, []string{"Alice", "Bob"}, out.Metadata[domain.MetaActorNames], "display names dedupe in first-seen order")
	assert.Equal(t, "evt-1", out.Metadata[domain.MetaFirstEventID])
	assert.Equal(t, "hello-world", out.Metadata["postSlug"], "first event metadata carries over")

	assert.Nil(t, first.Metadata[domain.MetaAggregated], "source event metadata is not mutated")
}

func TestDLQTopicNaming(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		channel domain.Channel
		want    string
	}{
		{domain.ChannelEmail, "notifications.dlq.email"},
		{domain.ChannelSMS, "notifications.dlq.sms"},
		{domain.ChannelPush, "notifications.dlq.push"},
	} {
		assert.Equal(t, tt.want, domain.DLQTopic(tt.channel), fmt.Sprintf("channel %s", tt.channel))
	}
}
