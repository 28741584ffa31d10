package consumer

import (
	"context"
	"errors"
	"sync"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	rows    []model.RawLog
	failErr error
	closed  bool
}

func (s *memStore) Insert(_ context.Context, row *model.RawLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		err := s.failErr
		s.failErr = nil
		return err
	}
	row.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, *row)
	return nil
}

func (s *memStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *memStore) Rows() []model.RawLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RawLog(nil), s.rows...)
}

func (s *memStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *memStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type chanSubscription struct {
	ch   chan broker.Message
	once sync.Once
	done chan struct{}
}

func newChanSubscription() *chanSubscription {
	return &chanSubscription{ch: make(chan broker.Message), done: make(chan struct{})}
}

func (s *chanSubscription) Messages() <-chan broker.Message { return s.ch }

func (s *chanSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// Send delivers a payload unless the subscription was closed first.
func (s *chanSubscription) Send(payload []byte) bool {
	select {
	case s.ch <- broker.Message{Channel: "log-channel", Payload: payload}:
		return true
	case <-s.done:
		return false
	}
}

// fakeSubscriber hands every new subscription to the test through subs.
type fakeSubscriber struct {
	subs     chan *chanSubscription
	mu       sync.Mutex
	channels []string
	closed   bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(chan *chanSubscription, 8)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel string) (broker.Subscription, error) {
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.mu.Unlock()
	sub := newChanSubscription()
	f.subs <- sub
	return sub, nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

var errUnreachable = errors.New("connection refused")
