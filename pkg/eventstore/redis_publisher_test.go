package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semops-labs/som/core/pkg/contracts"
)

type fakeStreamer struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStreamer) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1-1", nil)
}

func TestRedisPublisher_Publish(t *testing.T) {
	fake := &fakeStreamer{}
	pub := NewRedisPublisher(fake, "som.events")

	e := &contracts.Event{
		ID:         "evt-1",
		Type:       contracts.EventTaskStarted,
		OccurredAt: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		RecordedAt: time.Date(2026, 1, 15, 10, 0, 1, 0, time.UTC),
		Actor:      "actor-1",
		Payload:    map[string]any{"k": "v"},
	}
	pub.Publish(e)

	require.Len(t, fake.args, 1)
	assert.Equal(t, "som.events", fake.args[0].Stream)
	assert.Equal(t, "evt-1", fake.args[0].Values.(map[string]any)["id"])
	assert.Equal(t, "TaskStarted", fake.args[0].Values.(map[string]any)["type"])
}

func TestRedisPublisher_WiredAsSubscriber(t *testing.T) {
	fake := &fakeStreamer{}
	pub := NewRedisPublisher(fake, "som.events")

	s := newTestStore()
	s.Subscribe(pub.Handler())

	_, result, err := s.Submit(context.Background(), validParams())
	require.NoError(t, err)
	require.True(t, result.Valid)
	assert.Len(t, fake.args, 1)
}
