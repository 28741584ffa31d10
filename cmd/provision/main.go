package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/akave-ai/logpipe/internal/config"
	"github.com/akave-ai/logpipe/internal/database"
	"github.com/akave-ai/logpipe/internal/logger"
)

// provision applies the embedded migrations once, ahead of starting consumers
// with LOGPIPE_CONSUMER__PROVISION_MODE=none.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.ForProvision)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	lg := logger.New(cfg.Primary.Env, cfg.Primary.LogLevel, cfg.Observability.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, lg)
	if err != nil {
		lg.Error().Err(err).Msg("database pool")
		return 1
	}
	defer pool.Close()

	version, err := database.Migrate(ctx, pool, lg)
	if err != nil {
		lg.Error().Err(err).Msg("migrations")
		return 1
	}
	lg.Info().Int32("version", version).Msg("schema provisioned")
	return 0
}
