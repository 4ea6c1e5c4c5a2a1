package messaging_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
	"github.com/pulsewire/notifyhub/internal/notification/infrastructure/messaging"
	"github.com/pulsewire/notifyhub/pkg/mq"
)

type fakeEnsurer struct {
	mu        sync.Mutex
	existing  map[string]bool
	specs     []mq.TopicSpec
	existsErr error
	ensureErr error
}

func newFakeEnsurer() *fakeEnsurer {
	return &fakeEnsurer{existing: make(map[string]bool)}
}

func (f *fakeEnsurer) Exists(_ context.Context, topic string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[topic], nil
}

func (f *fakeEnsurer) Ensure(_ context.Context, specs ...mq.TopicSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	for _, s := range specs {
		f.existing[s.Topic] = true
		f.specs = append(f.specs, s)
	}
	return nil
}

func (f *fakeEnsurer) created() []mq.TopicSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mq.TopicSpec(nil), f.specs...)
}

func testEnvelope(channel domain.Channel) domain.DLQEnvelope {
	e := testEvent()
	return domain.NewDLQEnvelope(*e, channel, 4, errors.New("gateway overloaded"))
}

func TestDLQEmitterCreatesTopicOnFirstPublish(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	ensurer := newFakeEnsurer()
	emitter := messaging.NewDLQEmitter(producer, ensurer, 3, 2, discardLogger())
	ctx := context.Background()

	require.NoError(t, emitter.Publish(ctx, testEnvelope(domain.ChannelEmail)))
	require.NoError(t, emitter.Publish(ctx, testEnvelope(domain.ChannelEmail)))

	specs := ensurer.created()
	require.Len(t, specs, 1, "the topic is created once and cached")
	assert.Equal(t, "notifications.dlq.email", specs[0].Topic)
	assert.Equal(t, 3, specs[0].Partitions)
	assert.Equal(t, 2, specs[0].ReplicationFactor)
	assert.Equal(t, 30*24*time.Hour, specs[0].Retention)

	require.Len(t, producer.sent, 2)
	assert.Equal(t, "notifications.dlq.email", producer.sent[0].topic)
	assert.Equal(t, "user-1", producer.sent[0].key)
}

func TestDLQEmitterSkipsExistingTopic(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	ensurer := newFakeEnsurer()
	ensurer.existing["notifications.dlq.sms"] = true
	emitter := messaging.NewDLQEmitter(producer, ensurer, 3, 2, discardLogger())

	require.NoError(t, emitter.Publish(context.Background(), testEnvelope(domain.ChannelSMS)))
	assert.Empty(t, ensurer.created(), "existing topics keep their retention settings")
	assert.Len(t, producer.sent, 1)
}

func TestDLQEmitterSeparatesChannels(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	ensurer := newFakeEnsurer()
	emitter := messaging.NewDLQEmitter(producer, ensurer, 3, 2, discardLogger())
	ctx := context.Background()

	require.NoError(t, emitter.Publish(ctx, testEnvelope(domain.ChannelEmail)))
	require.NoError(t, emitter.Publish(ctx, testEnvelope(domain.ChannelSMS)))

	topics := make([]string, 0, 2)
	for _, spec := range ensurer.created() {
		topics = append(topics, spec.Topic)
	}
	assert.ElementsMatch(t, []string{"notifications.dlq.email", "notifications.dlq.sms"}, topics)
}

func TestDLQEmitterRetriesFailedTopicCreation(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{}
	ensurer := newFakeEnsurer()
	ensurer.ensureErr = errors.New("controller unavailable")
	emitter := messaging.NewDLQEmitter(producer, ensurer, 3, 2, discardLogger())
	ctx := context.Background()

	env := testEnvelope(domain.ChannelEmail)
	require.Error(t, emitter.Publish(ctx, env))
	assert.Empty(t, producer.sent, "no envelope lands without its topic")

	// The failure must not be cached.
	ensurer.mu.Lock()
	ensurer.ensureErr = nil
	ensurer.mu.Unlock()

	require.NoError(t, emitter.Publish(ctx, env))
	assert.Len(t, producer.sent, 1)
}

func TestDLQEmitterPropagatesPublishError(t *testing.T) {
	t.Parallel()

	producer := &fakeProducer{err: errors.New("broker unreachable")}
	ensurer := newFakeEnsurer()
	emitter := messaging.NewDLQEmitter(producer, ensurer, 3, 2, discardLogger())

	err := emitter.Publish(context.Background(), testEnvelope(domain.ChannelEmail))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications.dlq.email")
}
