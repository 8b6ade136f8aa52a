package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type mockOutboxRepo struct {
	mu        sync.Mutex
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	failed    map[uuid.UUID]string
	claimErr  error
}

func (m *mockOutboxRepo) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if limit > len(m.pending) {
		limit = len(m.pending)
	}
	batch := m.pending[:limit]
	m.pending = m.pending[limit:]
	return batch, nil
}

func (m *mockOutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[uuid.UUID]string{}
	}
	m.failed[id] = reason
	return nil
}

func (m *mockOutboxRepo) ReleaseStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *mockOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type mockBroker struct {
	mu        sync.Mutex
	published []messaging.Envelope
	failures  int
}

func (b *mockBroker) Publish(_ context.Context, _ string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker down")
	}
	b.published = append(b.published, message.(messaging.Envelope))
	return nil
}

func (b *mockBroker) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *mockBroker) Close() error                                            { return nil }

func newEvent(t *testing.T, eventType string) *model.OutboxEvent {
	t.Helper()
	e, err := model.NewOutboxEvent(uuid.New(), eventType, map[string]string{"k": "v"})
	require.NoError(t, err)
	return e
}

func newProcessor(t *testing.T, repo *mockOutboxRepo, broker *mockBroker, attempts int) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	p, err := NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		Channel:       "visits",
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: attempts,
		RetryDelay:    0,
	}, zerolog.Nop(), m)
	require.NoError(t, err)
	return p, m
}

func TestProcessBatchPublishesAndMarksProcessed(t *testing.T) {
	e1 := newEvent(t, model.EventVisitStageChanged)
	e2 := newEvent(t, model.EventVisitDischarged)
	repo := &mockOutboxRepo{pending: []*model.OutboxEvent{e1, e2}}
	broker := &mockBroker{}
	p, m := newProcessor(t, repo, broker, 3)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, broker.published, 2)
	assert.Equal(t, e1.ID, broker.published[0].ID)
	assert.Equal(t, model.EventVisitDischarged, broker.published[1].EventType)
	assert.JSONEq(t, `{"k":"v"}`, string(broker.published[0].Payload))

	assert.ElementsMatch(t, []uuid.UUID{e1.ID, e2.ID}, repo.processed)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))
}

func TestProcessBatchRetriesThenSucceeds(t *testing.T) {
	e := newEvent(t, model.EventVisitStageChanged)
	repo := &mockOutboxRepo{pending: []*model.OutboxEvent{e}}
	broker := &mockBroker{failures: 2}
	p, m := newProcessor(t, repo, broker, 3)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventVisitStageChanged)))
	assert.Empty(t, repo.failed)
}

func TestProcessBatchMarksFailedAfterRetries(t *testing.T) {
	e := newEvent(t, model.EventVisitDischarged)
	repo := &mockOutboxRepo{pending: []*model.OutboxEvent{e}}
	broker := &mockBroker{failures: 5}
	p, m := newProcessor(t, repo, broker, 2)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "broker down", repo.failed[e.ID])
	assert.Empty(t, repo.processed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsFailed))
}

func TestProcessBatchClaimError(t *testing.T) {
	repo := &mockOutboxRepo{claimErr: errors.New("db gone")}
	p, _ := newProcessor(t, repo, &mockBroker{}, 1)

	_, err := p.ProcessBatch(context.Background())
	assert.ErrorContains(t, err, "db gone")
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	_, err := NewOutboxProcessor(&mockOutboxRepo{}, &mockBroker{}, OutboxProcessorConfig{Channel: "c"}, zerolog.Nop(), nil)
	assert.ErrorContains(t, err, "batch size")
}

func TestStartStopsOnCancel(t *testing.T) {
	e := newEvent(t, model.EventVisitCheckedIn)
	repo := &mockOutboxRepo{pending: []*model.OutboxEvent{e}}
	broker := &mockBroker{}
	p, _ := newProcessor(t, repo, broker, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.processed) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}

	var payload map[string]string
	require.NoError(t, json.Unmarshal(broker.published[0].Payload, &payload))
	assert.Equal(t, "v", payload["k"])
}
