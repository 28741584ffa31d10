package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/metrics"
)

// RetryPolicy retries connections at a fixed interval.
type RetryPolicy struct {
	Interval time.Duration
	// MaxAttempts bounds attempts per connection. 0 retries until the context ends.
	MaxAttempts uint64
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Interval)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// Deps are the connection factories the supervisor drives. Values returned by
// ConnectStore and ConnectBroker are closed on shutdown when they implement
// io.Closer or interface{ Close() }.
type Deps struct {
	ConnectStore  func(ctx context.Context) (Store, error)
	ConnectBroker func(ctx context.Context) (broker.Subscriber, error)
	// Provision prepares the schema once the store is reachable. Optional.
	Provision func(ctx context.Context, store Store) error
}

// Supervisor owns the consumer's lifecycle:
//
//	store:  disconnected -> connecting -> connected
//	broker: disconnected -> connecting -> connected
//	loop:   idle -> running -> (failed -> running)* -> stopped
//
// Every transition is recorded in Status so failures are visible to readiness
// checks instead of silently halting ingestion.
type Supervisor struct {
	channel string
	retry   RetryPolicy
	deps    Deps
	status  *Status
	nr      *newrelic.Application
	logger  zerolog.Logger
}

func NewSupervisor(channel string, retry RetryPolicy, deps Deps, status *Status, nr *newrelic.Application, logger zerolog.Logger) *Supervisor {
	if status == nil {
		status = NewStatus()
	}
	return &Supervisor{
		channel: channel,
		retry:   retry,
		deps:    deps,
		status:  status,
		nr:      nr,
		logger:  logger.With().Str("component", "supervisor").Logger(),
	}
}

func (s *Supervisor) Status() *Status { return s.status }

// Run blocks until ctx is cancelled (returns nil) or a connection cannot be
// established within the retry policy (returns the last error).
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		if ctx.Err() != nil {
			s.status.setLoop(LoopStopped, nil)
		}
	}()

	store, err := connectWithRetry(ctx, s, TargetStore, s.deps.ConnectStore)
	if err != nil {
		return s.exit(ctx, err)
	}
	defer closeQuietly(store, s.logger)
	s.logger.Info().Msg("successfully connected to the database")

	if s.deps.Provision != nil {
		if err := s.provision(ctx, store); err != nil {
			return s.exit(ctx, err)
		}
	}

	subscriber, err := connectWithRetry(ctx, s, TargetBroker, s.deps.ConnectBroker)
	if err != nil {
		return s.exit(ctx, err)
	}
	defer closeQuietly(subscriber, s.logger)

	c := New(store, s.status, s.nr, s.logger)
	for {
		sub, err := connectWithRetry(ctx, s, TargetBroker, func(ctx context.Context) (broker.Subscription, error) {
			return subscriber.Subscribe(ctx, s.channel)
		})
		if err != nil {
			return s.exit(ctx, err)
		}

		s.status.setLoop(LoopRunning, nil)
		s.logger.Info().Str("channel", s.channel).Msg("consumption loop started")
		err = c.Run(ctx, sub)
		_ = sub.Close()

		if ctx.Err() != nil {
			s.logger.Info().Msg("consumption loop stopped")
			return nil
		}

		s.status.setLoop(LoopFailed, err)
		if errors.Is(err, ErrSubscriptionClosed) {
			s.status.disconnected(TargetBroker, err)
		}
		s.logger.Error().Err(err).Dur("restart_in", s.retry.Interval).Msg("consumption loop failed")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.retry.Interval):
		}
		s.status.restarted()
		metrics.LoopRestarts.Inc()
	}
}

func (s *Supervisor) provision(ctx context.Context, store Store) error {
	op := func() error { return s.deps.Provision(ctx, store) }
	notify := func(err error, wait time.Duration) {
		s.logger.Error().Err(err).Dur("retry_in", wait).Msg("could not provision schema, retrying")
	}
	if err := backoff.RetryNotify(op, s.retry.backOff(ctx), notify); err != nil {
		return fmt.Errorf("provision schema: %w", err)
	}
	s.logger.Info().Msg("table 'raw_logs' is ready")
	return nil
}

func (s *Supervisor) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.status.setLoop(LoopFailed, err)
	return err
}

func connectWithRetry[T any](ctx context.Context, s *Supervisor, target string, dial func(context.Context) (T, error)) (T, error) {
	var conn T
	op := func() error {
		s.status.connecting(target)
		v, err := dial(ctx)
		if err != nil {
			s.status.disconnected(target, err)
			metrics.ConnectAttempts.WithLabelValues(target, "error").Inc()
			return err
		}
		conn = v
		s.status.connected(target)
		metrics.ConnectAttempts.WithLabelValues(target, "ok").Inc()
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Error().Err(err).Str("target", target).Dur("retry_in", wait).Msg("could not connect, retrying")
	}
	if err := backoff.RetryNotify(op, s.retry.backOff(ctx), notify); err != nil {
		return conn, fmt.Errorf("connect %s: %w", target, err)
	}
	return conn, nil
}

func closeQuietly(v any, logger zerolog.Logger) {
	switch c := v.(type) {
	case io.Closer:
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("close")
		}
	case interface{ Close() }:
		c.Close()
	}
}
