package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	ResultPersisted = "persisted"
	ResultMalformed = "malformed"
	ResultFailed    = "failed"
)

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_events_published_total",
			Help: "Total number of log events published by the generator",
		},
		[]string{"status_code", "result"},
	)

	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_events_consumed_total",
			Help: "Total number of log events received by the consumer",
		},
		[]string{"result"},
	)

	InsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logpipe_insert_duration_seconds",
			Help:    "Duration of single-row inserts into raw_logs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	ConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logpipe_connect_attempts_total",
			Help: "Connection attempts made by the consumer",
		},
		[]string{"target", "result"},
	)

	LoopRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "logpipe_consumption_loop_restarts_total",
			Help: "Number of times the consumption loop was restarted after a failure",
		},
	)

	Ready = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "logpipe_consumer_ready",
			Help: "1 when the consumer is connected and the consumption loop is running",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsConsumed)
	prometheus.MustRegister(InsertDuration)
	prometheus.MustRegister(ConnectAttempts)
	prometheus.MustRegister(LoopRestarts)
	prometheus.MustRegister(Ready)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer serves /metrics on addr in the background and returns the server
// so the caller can shut it down.
func StartServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return server
}
