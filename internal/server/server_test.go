package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/config"
	"github.com/akave-ai/logpipe/internal/consumer"
	"github.com/akave-ai/logpipe/internal/handler"
	"github.com/akave-ai/logpipe/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", ReadTimeout: 5, WriteTimeout: 5, IdleTimeout: 5},
	}
}

type fakeLister struct {
	rows []model.RawLog
	err  error
}

func (f *fakeLister) ListRecent(_ context.Context, limit int) ([]model.RawLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[:min(limit, len(f.rows))], nil
}

func (f *fakeLister) Count(context.Context) (int64, error) { return int64(len(f.rows)), nil }

func newTestServer(status *consumer.Status, lister handler.RecentLister) *Server {
	logs := &handler.LogHandler{Source: func() handler.RecentLister { return lister }}
	return New(testConfig(), &handler.HealthHandler{Status: status}, logs, zerolog.Nop())
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestLiveness_BeforeAnyConnection(t *testing.T) {
	s := newTestServer(consumer.NewStatus(), nil)

	rec := get(s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "Consumer is running."}`, rec.Body.String())
}

func TestReadiness_NotReadyBeforeConnections(t *testing.T) {
	s := newTestServer(consumer.NewStatus(), nil)

	rec := get(s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Data consumer.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Data.Ready)
	assert.Equal(t, consumer.Disconnected, body.Data.Store.State)
	assert.Equal(t, consumer.LoopIdle, body.Data.Loop)
}

func TestStatus_AlwaysOK(t *testing.T) {
	s := newTestServer(consumer.NewStatus(), nil)
	assert.Equal(t, http.StatusOK, get(s, "/status").Code)
}

func TestRecentLogs(t *testing.T) {
	ip := "10.0.0.1"
	lister := &fakeLister{rows: []model.RawLog{
		{ID: 3, Timestamp: time.Now().UTC(), StatusCode: "500"},
		{ID: 2, Timestamp: time.Now().UTC(), StatusCode: "200", IPAddress: &ip},
		{ID: 1, Timestamp: time.Now().UTC(), StatusCode: "404"},
	}}
	s := newTestServer(consumer.NewStatus(), lister)

	rec := get(s, "/logs/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Logs  []model.RawLog `json:"logs"`
			Total int64          `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data.Logs, 2)
	assert.Equal(t, int64(3), body.Data.Total)
	assert.Equal(t, int64(3), body.Data.Logs[0].ID)
}

func TestRecentLogs_Errors(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, get(newTestServer(consumer.NewStatus(), nil), "/logs/recent").Code)

	s := newTestServer(consumer.NewStatus(), &fakeLister{})
	assert.Equal(t, http.StatusBadRequest, get(s, "/logs/recent?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(s, "/logs/recent?limit=-1").Code)

	failing := newTestServer(consumer.NewStatus(), &fakeLister{err: errors.New("timeout")})
	assert.Equal(t, http.StatusInternalServerError, get(failing, "/logs/recent").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(consumer.NewStatus(), nil)

	rec := get(s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "logpipe_consumer_ready"))
}

type nopStore struct{}

func (nopStore) Insert(context.Context, *model.RawLog) error { return nil }

type idleSubscriber struct{}

func (idleSubscriber) Subscribe(context.Context, string) (broker.Subscription, error) {
	return &idleSubscription{ch: make(chan broker.Message)}, nil
}

type idleSubscription struct{ ch chan broker.Message }

func (s *idleSubscription) Messages() <-chan broker.Message { return s.ch }
func (s *idleSubscription) Close() error                    { return nil }

func TestReadiness_ReadyWhileLoopRuns(t *testing.T) {
	status := consumer.NewStatus()
	sv := consumer.NewSupervisor("log-channel", consumer.RetryPolicy{Interval: 10 * time.Millisecond}, consumer.Deps{
		ConnectStore:  func(context.Context) (consumer.Store, error) { return nopStore{}, nil },
		ConnectBroker: func(context.Context) (broker.Subscriber, error) { return idleSubscriber{}, nil },
	}, status, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sv.Run(ctx) }()

	s := newTestServer(status, nil)
	require.Eventually(t, func() bool { return get(s, "/readyz").Code == http.StatusOK }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusOK, get(s, "/").Code)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = "127.0.0.1:0"
	s := New(cfg, &handler.HealthHandler{Status: consumer.NewStatus()}, &handler.LogHandler{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
