package application_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pulsewire/notifyhub/internal/notification/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func likeEvent(id, actorID, actorName string) *domain.NotificationEvent {
	return &domain.NotificationEvent{
		ID:             id,
		Type:           domain.TypeLike,
		Priority:       domain.PriorityLow,
		ActorID:        actorID,
		ActorName:      actorName,
		TargetID:       "user-1",
		TargetType:     "POST",
		TargetEntityID: "post-1",
		Title:          "New like",
		Message:        actorName + " liked your post",
		Timestamp:      time.Now().UnixMilli(),
	}
}

func otpEvent(id string) *domain.NotificationEvent {
	return &domain.NotificationEvent{
		ID:        id,
		Type:      domain.TypeOTP,
		Priority:  domain.PriorityCritical,
		ActorID:   "system",
		TargetID:  "user-1",
		Title:     "Verification code",
		Message:   "Your code is 424242",
		Timestamp: time.Now().UnixMilli(),
	}
}

// memoryWindowStore mirrors the redis window store semantics: atomic
// touch, first-flush-wins consume, generation index.
type memoryWindowStore struct {
	mu         sync.Mutex
	windows    map[domain.WindowKey]*memoryWindow
	touchErr   error
	consumeErr error
	listErr    error
}

type memoryWindow struct {
	first  domain.NotificationEvent
	actors []domain.Actor
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{windows: make(map[domain.WindowKey]*memoryWindow)}
}

func (s *memoryWindowStore) Touch(_ context.Context, key domain.WindowKey, e *domain.NotificationEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return 0, s.touchErr
	}

	w, ok := s.windows[key]
	if !ok {
		w = &memoryWindow{first: *e}
		s.windows[key] = w
	}
	for _, a := range w.actors {
		if a.ID == e.ActorID {
			return int64(len(w.actors)), nil
		}
	}
	w.actors = append(w.actors, domain.Actor{ID: e.ActorID, Name: e.ActorName, Avatar: e.ActorAvatar})
	return int64(len(w.actors)), nil
}

func (s *memoryWindowStore) Consume(_ context.Context, key domain.WindowKey) (domain.WindowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumeErr != nil {
		return domain.WindowSnapshot{}, s.consumeErr
	}

	w, ok := s.windows[key]
	if !ok {
		return domain.WindowSnapshot{Key: key}, nil
	}
	delete(s.windows, key)
	return domain.WindowSnapshot{Key: key, First: w.first, Actors: w.actors}, nil
}

func (s *memoryWindowStore) ListGeneration(_ context.Context, windowID int64) ([]domain.WindowKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	var keys []domain.WindowKey
	for key := range s.windows {
		if key.WindowID == windowID {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *memoryWindowStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *memoryWindowStore) actorTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, w := range s.windows {
		total += len(w.actors)
	}
	return total
}

// generations returns every window generation currently held, useful for
// sweeping whatever generation the clock assigned during the test.
func (s *memoryWindowStore) generations() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]struct{})
	for key := range s.windows {
		seen[key.WindowID] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakePreferences struct {
	mu         sync.Mutex
	suppressed map[string]bool
	err        error
}

func newFakePreferences() *fakePreferences {
	return &fakePreferences{suppressed: make(map[string]bool)}
}

func (p *fakePreferences) suppress(targetID string, t domain.NotificationType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suppressed[targetID+"/"+string(t)] = true
}

func (p *fakePreferences) Allows(_ context.Context, targetID string, t domain.NotificationType) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return true, p.err
	}
	return !p.suppressed[targetID+"/"+string(t)], nil
}

type fakeReadyPublisher struct {
	mu        sync.Mutex
	published []domain.NotificationEvent
	err       error
}

func (p *fakeReadyPublisher) PublishReady(_ context.Context, e *domain.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, *e)
	return nil
}

func (p *fakeReadyPublisher) events() []domain.NotificationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.NotificationEvent(nil), p.published...)
}

type fakeAuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func (l *fakeAuditLog) Record(_ context.Context, entries ...domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append(l.entries, entries...)
	return nil
}

func (l *fakeAuditLog) recorded() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.AuditEntry(nil), l.entries...)
}

// fakeSender fails with the queued errors first, then succeeds.
type fakeSender struct {
	mu      sync.Mutex
	channel domain.Channel
	errs    []error
	calls   int
}

func (s *fakeSender) Channel() domain.Channel { return s.channel }

func (s *fakeSender) Send(context.Context, *domain.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeDeadLetterSink struct {
	mu        sync.Mutex
	envelopes []domain.DLQEnvelope
	err       error
}

func (d *fakeDeadLetterSink) Publish(_ context.Context, env domain.DLQEnvelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.envelopes = append(d.envelopes, env)
	return nil
}

func (d *fakeDeadLetterSink) all() []domain.DLQEnvelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.DLQEnvelope(nil), d.envelopes...)
}

type fakeFallbackStore struct {
	mu      sync.Mutex
	records map[string]*domain.FallbackRecord
	order   []string
	saveErr error
}

func newFakeFallbackStore() *fakeFallbackStore {
	return &fakeFallbackStore{records: make(map[string]*domain.FallbackRecord)}
}

func (s *fakeFallbackStore) Save(_ context.Context, rec *domain.FallbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.records[rec.ID]; ok {
		return nil
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *fakeFallbackStore) ListPending(_ context.Context, maxRetries, limit int) ([]*domain.FallbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.FallbackRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Processed || rec.RetryCount >= maxRetries {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeFallbackStore) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.Processed = true
	rec.ProcessedAt = &now
	return nil
}

func (s *fakeFallbackStore) MarkFailure(_ context.Context, id, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	rec.RetryCount++
	rec.LastError = cause
	return nil
}

func (s *fakeFallbackStore) CountPending(_ context.Context, maxRetries int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.records {
		if !rec.Processed && rec.RetryCount < maxRetries {
			n++
		}
	}
	return n, nil
}

func (s *fakeFallbackStore) CountFailed(_ context.Context, maxRetries int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.records {
		if !rec.Processed && rec.RetryCount >= maxRetries {
			n++
		}
	}
	return n, nil
}

func (s *fakeFallbackStore) get(id string) *domain.FallbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// fakeBroker records raw sends and fails the topics listed in failTopics.
type fakeBroker struct {
	mu         sync.Mutex
	sent       []brokerMessage
	failTopics map[string]error
	calls      int
}

type brokerMessage struct {
	topic   string
	key     string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{failTopics: make(map[string]error)}
}

func (b *fakeBroker) SendRaw(_ context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if err, ok := b.failTopics[topic]; ok {
		return err
	}
	b.sent = append(b.sent, brokerMessage{topic: topic, key: key, payload: payload})
	return nil
}

func (b *fakeBroker) messages() []brokerMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]brokerMessage(nil), b.sent...)
}

func (b *fakeBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}
