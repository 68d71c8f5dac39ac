package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medimart/orders/internal/repository"
)

// fakeWriter records messages instead of talking to Kafka
type fakeWriter struct {
	mu       sync.Mutex
	err      error
	messages []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func insertEvent(t *testing.T, store *repository.MemoryStore, aggregateID, eventType string) {
	t.Helper()
	require.NoError(t, store.InsertOutboxEvent(context.Background(), &repository.OutboxEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     []byte(`{"order_id":"` + aggregateID + `"}`),
	}))
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	store := repository.NewMemoryStore()
	writer := &fakeWriter{}
	poller := &OutboxPoller{tick: time.Second, store: store, writer: writer}
	ctx := context.Background()

	insertEvent(t, store, "order-1", "order.created")
	insertEvent(t, store, "order-2", "order.confirmed")

	poller.processUnpublishedEvents(ctx)

	require.Len(t, writer.messages, 2)
	assert.Equal(t, []byte("order-1"), writer.messages[0].Key)
	require.Len(t, writer.messages[0].Headers, 1)
	assert.Equal(t, "event_type", writer.messages[0].Headers[0].Key)
	assert.Equal(t, []byte("order.created"), writer.messages[0].Headers[0].Value)

	remaining, err := store.ListUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestProcessUnpublishedEvents_FailedPublishStaysQueued(t *testing.T) {
	store := repository.NewMemoryStore()
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	poller := &OutboxPoller{tick: time.Second, store: store, writer: writer}
	ctx := context.Background()

	insertEvent(t, store, "order-1", "order.created")

	poller.processUnpublishedEvents(ctx)

	remaining, err := store.ListUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	// The broker recovers; the next tick drains the backlog.
	writer.err = nil
	poller.processUnpublishedEvents(ctx)

	remaining, err = store.ListUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.Len(t, writer.messages, 1)
}
