package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/config"
	"github.com/akave-ai/logpipe/internal/generator"
	"github.com/akave-ai/logpipe/internal/logger"
	"github.com/akave-ai/logpipe/internal/metrics"
)

// The generator exits 0 both on interrupt and when Redis is unreachable at
// startup; it never retries the initial connection.
func main() {
	cfg, err := config.Load(config.ForGenerator)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(cfg.Primary.Env, cfg.Primary.LogLevel, cfg.Observability.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Generator.MetricsAddr != "" {
		ms := metrics.StartServer(cfg.Generator.MetricsAddr, lg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	lg.Info().Msg("connecting to redis")
	b, err := broker.NewRedis(ctx, cfg.Broker.URL, lg)
	if err != nil {
		lg.Error().Err(err).Msg("could not connect to redis")
		return
	}
	defer b.Close()

	gen := generator.New(generator.Options{
		Seed:        cfg.Generator.Seed,
		MinInterval: cfg.Generator.MinInterval,
		MaxInterval: cfg.Generator.MaxInterval,
	}, lg)

	lg.Info().Msg("starting log generation, press Ctrl+C to stop")
	if err := gen.Run(ctx, b, cfg.Broker.Channel); err != nil {
		lg.Error().Err(err).Msg("generator stopped")
	}
}
