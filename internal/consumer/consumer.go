package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/metrics"
	"github.com/akave-ai/logpipe/internal/model"
)

// ErrSubscriptionClosed ends the loop when the broker stops delivering.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Store persists projected log rows.
type Store interface {
	Insert(ctx context.Context, row *model.RawLog) error
}

// Consumer turns broker messages into raw_logs rows, one insert per message.
type Consumer struct {
	store  Store
	status *Status
	nr     *newrelic.Application
	logger zerolog.Logger
}

func New(store Store, status *Status, nr *newrelic.Application, logger zerolog.Logger) *Consumer {
	if status == nil {
		status = NewStatus()
	}
	return &Consumer{
		store:  store,
		status: status,
		nr:     nr,
		logger: logger.With().Str("component", "consumer").Logger(),
	}
}

// Handle decodes one payload and persists it. Decode and validation failures
// wrap model.ErrMalformedEvent; store failures are returned as-is wrapped.
func (c *Consumer) Handle(ctx context.Context, payload []byte) error {
	txn := c.nr.StartTransaction("consume-log-event")
	defer txn.End()
	if txn != nil {
		ctx = newrelic.NewContext(ctx, txn)
	}

	event, err := model.DecodeLogEvent(payload)
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.ResultMalformed).Inc()
		c.status.eventMalformed()
		return err
	}
	row, err := event.ToRawLog()
	if err != nil {
		metrics.EventsConsumed.WithLabelValues(metrics.ResultMalformed).Inc()
		c.status.eventMalformed()
		return err
	}

	start := time.Now()
	if err := c.store.Insert(ctx, &row); err != nil {
		metrics.InsertDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		metrics.EventsConsumed.WithLabelValues(metrics.ResultFailed).Inc()
		txn.NoticeError(err)
		return fmt.Errorf("persist event: %w", err)
	}
	metrics.InsertDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	metrics.EventsConsumed.WithLabelValues(metrics.ResultPersisted).Inc()
	c.status.eventPersisted()

	c.logger.Info().Str("status_code", event.StatusCode).Int64("id", row.ID).Msg("logged event")
	return nil
}

// Run consumes sub until ctx is cancelled, the subscription closes or a store
// write fails. Malformed messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context, sub broker.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return ErrSubscriptionClosed
			}
			if err := c.Handle(ctx, msg.Payload); err != nil {
				if errors.Is(err, model.ErrMalformedEvent) {
					c.logger.Warn().Err(err).Int("bytes", len(msg.Payload)).Msg("skipping malformed message")
					continue
				}
				return err
			}
		}
	}
}
