package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/metrics"
	"github.com/akave-ai/logpipe/internal/model"
)

// StatusWeight is a status code and its relative frequency.
type StatusWeight struct {
	Code   string
	Weight int
}

// StatusWeights skews traffic towards successes with a visible share of errors.
var StatusWeights = []StatusWeight{
	{Code: "200", Weight: 10},
	{Code: "404", Weight: 2},
	{Code: "403", Weight: 1},
	{Code: "301", Weight: 1},
	{Code: "500", Weight: 5},
}

type Options struct {
	// Seed makes the event stream reproducible. 0 seeds from the clock.
	Seed        uint64
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Generator fabricates access-log events. It is not safe for concurrent use.
type Generator struct {
	faker       *gofakeit.Faker
	minInterval time.Duration
	maxInterval time.Duration
	totalWeight int
	now         func() time.Time
	logger      zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) *Generator {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval < opts.MinInterval {
		opts.MaxInterval = opts.MinInterval
	}
	total := 0
	for _, sw := range StatusWeights {
		total += sw.Weight
	}
	return &Generator{
		faker:       gofakeit.New(seed),
		minInterval: opts.MinInterval,
		maxInterval: opts.MaxInterval,
		totalWeight: total,
		now:         time.Now,
		logger:      logger.With().Str("component", "generator").Logger(),
	}
}

// Event returns a new synthetic log event stamped with the current UTC time.
func (g *Generator) Event() model.LogEvent {
	return model.LogEvent{
		IP:         g.faker.IPv4Address(),
		Timestamp:  g.now().UTC().Format(model.TimestampLayout),
		Method:     g.faker.RandomString(model.Methods),
		URL:        g.faker.RandomString(model.URLs),
		StatusCode: g.statusCode(),
		UserAgent:  g.faker.UserAgent(),
	}
}

func (g *Generator) statusCode() string {
	n := g.faker.Number(0, g.totalWeight-1)
	for _, sw := range StatusWeights {
		if n < sw.Weight {
			return sw.Code
		}
		n -= sw.Weight
	}
	return StatusWeights[0].Code
}

// Delay returns a uniformly random pause in [MinInterval, MaxInterval].
func (g *Generator) Delay() time.Duration {
	if g.maxInterval == g.minInterval {
		return g.minInterval
	}
	f := g.faker.Float64Range(float64(g.minInterval), float64(g.maxInterval))
	return time.Duration(f)
}

// Run publishes one event per tick until ctx is cancelled. Publish failures are
// logged and the loop carries on with the next event.
func (g *Generator) Run(ctx context.Context, pub broker.Publisher, channel string) error {
	g.logger.Info().Str("channel", channel).Msg("starting log generation")
	for {
		if err := g.publishOne(ctx, pub, channel); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			g.logger.Error().Err(err).Msg("publish failed")
		}

		select {
		case <-ctx.Done():
			g.logger.Info().Msg("log generator stopped")
			return nil
		case <-time.After(g.Delay()):
		}
	}
}

func (g *Generator) publishOne(ctx context.Context, pub broker.Publisher, channel string) error {
	event := g.Event()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := pub.Publish(ctx, channel, payload); err != nil {
		metrics.EventsPublished.WithLabelValues(event.StatusCode, metrics.ResultFailed).Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(event.StatusCode, "published").Inc()
	g.logger.Info().
		Str("ip", event.IP).
		Str("method", event.Method).
		Str("url", event.URL).
		Str("status_code", event.StatusCode).
		Msg("published")
	return nil
}
