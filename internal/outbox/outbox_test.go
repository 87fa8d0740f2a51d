package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"recruit-desk/internal/storage"
	"recruit-desk/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failKeys  map[string]bool
}

func (p *fakePublisher) PublishMessage(_ context.Context, exchange, routingKey string, message []byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[routingKey] {
		return errors.New("channel closed")
	}
	p.published = append(p.published, exchange+"/"+routingKey)
	return nil
}

func TestBuildMessageEnvelope(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	built, raw, err := buildMessage(Event{
		AggregateID: "A1",
		WorkspaceID: "ws",
		Type:        "interview.scheduled",
		Data:        storage.InterviewScheduledData{InterviewID: "M1", ApplicantID: "A1", RoundNumber: 2},
	}, now)
	require.NoError(t, err)

	var msg storage.EventMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.NotEmpty(t, msg.EventID)
	assert.Equal(t, built.EventID, msg.EventID)
	assert.Equal(t, "interview.scheduled", msg.EventType)
	assert.Equal(t, "ws", msg.WorkspaceID)
	assert.True(t, now.Equal(msg.OccurredAt))

	var data storage.InterviewScheduledData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, 2, data.RoundNumber)
}

func TestPublishWriterUsesTypeAsRoutingKey(t *testing.T) {
	pub := &fakePublisher{}
	w := NewPublishWriter(pub, "recruit.events")

	require.NoError(t, w.Enqueue(context.Background(), Event{AggregateID: "S1", Type: "search.deleted", Data: map[string]string{}}))
	assert.Equal(t, []string{"recruit.events/search.deleted"}, pub.published)
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Enqueue(context.Background(), Event{Type: "a"}))
	require.NoError(t, rec.Enqueue(context.Background(), Event{Type: "b"}))
	assert.Len(t, rec.Events(), 2)
	assert.Len(t, rec.OfType("b"), 1)

	rec.Err = errors.New("down")
	assert.Error(t, rec.Enqueue(context.Background(), Event{Type: "c"}))
	assert.Len(t, rec.Events(), 2)
}

func TestPublishBatchUpdatesStatus(t *testing.T) {
	pub := &fakePublisher{failKeys: map[string]bool{"bad": true}}
	relay := NewMessageRelay(nil, pub, 0, 0)

	messages := []models.OutboxMessage{
		{ID: 1, Exchange: "x", RoutingKey: "good", Status: models.OutboxStatusPending},
		{ID: 2, Exchange: "x", RoutingKey: "bad", Status: models.OutboxStatusPending},
		{ID: 3, Exchange: "x", RoutingKey: "bad", Status: models.OutboxStatusPending, Attempts: maxRetryCount - 1},
	}
	relay.publishBatch(context.Background(), messages)

	assert.Equal(t, models.OutboxStatusSent, messages[0].Status)
	assert.NotNil(t, messages[0].ProcessedAt)

	assert.Equal(t, models.OutboxStatusPending, messages[1].Status)
	assert.Equal(t, 1, messages[1].Attempts)
	assert.Equal(t, "channel closed", messages[1].LastError)

	assert.Equal(t, models.OutboxStatusFailed, messages[2].Status)
}

func TestNewMessageRelayDefaults(t *testing.T) {
	relay := NewMessageRelay(nil, &fakePublisher{}, 0, -1)
	assert.Equal(t, defaultPollingInterval, relay.pollingInterval)
	assert.Equal(t, defaultBatchSize, relay.batchSize)
}
