package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logpipe/internal/model"
)

func eventPayload(t *testing.T, e model.LogEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestHandle_RoundTrip(t *testing.T) {
	store := &memStore{}
	c := New(store, nil, nil, zerolog.Nop())

	event := model.LogEvent{
		IP:         "172.16.4.20",
		Timestamp:  "2024-05-01T08:15:30.5+00:00",
		Method:     "DELETE",
		URL:        "/user/profile",
		StatusCode: "403",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64)",
	}
	require.NoError(t, c.Handle(context.Background(), eventPayload(t, event)))

	rows := store.Rows()
	require.Len(t, rows, 1)
	want, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	require.NoError(t, err)
	assert.True(t, want.Equal(rows[0].Timestamp))
	assert.Equal(t, "403", rows[0].StatusCode)
	require.NotNil(t, rows[0].IPAddress)
	assert.Equal(t, "172.16.4.20", *rows[0].IPAddress)
	assert.Equal(t, uint64(1), c.status.Snapshot().Persisted)
}

func TestHandle_Malformed(t *testing.T) {
	store := &memStore{}
	c := New(store, nil, nil, zerolog.Nop())

	err := c.Handle(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, model.ErrMalformedEvent)
	assert.Empty(t, store.Rows())
	assert.Equal(t, uint64(1), c.status.Snapshot().Malformed)
}

func TestHandle_StoreFailure(t *testing.T) {
	store := &memStore{}
	store.FailNext(errors.New("disk full"))
	c := New(store, nil, nil, zerolog.Nop())

	err := c.Handle(context.Background(), eventPayload(t, model.LogEvent{
		Timestamp: "2024-05-01T08:15:30Z", StatusCode: "200",
	}))
	assert.ErrorContains(t, err, "disk full")
	assert.NotErrorIs(t, err, model.ErrMalformedEvent)
}

func TestRun_SkipsMalformedAndStopsOnStoreFailure(t *testing.T) {
	store := &memStore{}
	c := New(store, nil, nil, zerolog.Nop())
	sub := newChanSubscription()

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), sub) }()

	require.True(t, sub.Send([]byte(`{"broken"`)))
	require.True(t, sub.Send(eventPayload(t, model.LogEvent{Timestamp: "2024-05-01T08:15:30Z", StatusCode: "200"})))
	require.Eventually(t, func() bool { return len(store.Rows()) == 1 }, 2*time.Second, time.Millisecond)
	store.FailNext(errors.New("lost connection"))
	require.True(t, sub.Send(eventPayload(t, model.LogEvent{Timestamp: "2024-05-01T08:15:31Z", StatusCode: "500"})))

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "lost connection")
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Len(t, store.Rows(), 1)
}

func TestRun_ClosedSubscription(t *testing.T) {
	c := New(&memStore{}, nil, nil, zerolog.Nop())
	sub := newChanSubscription()
	close(sub.ch)

	assert.ErrorIs(t, c.Run(context.Background(), sub), ErrSubscriptionClosed)
}

func TestRun_ContextCancelled(t *testing.T) {
	c := New(&memStore{}, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Run(ctx, newChanSubscription()), context.Canceled)
}
