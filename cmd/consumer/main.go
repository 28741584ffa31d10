package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logpipe/internal/broker"
	"github.com/akave-ai/logpipe/internal/config"
	"github.com/akave-ai/logpipe/internal/consumer"
	"github.com/akave-ai/logpipe/internal/database"
	"github.com/akave-ai/logpipe/internal/handler"
	"github.com/akave-ai/logpipe/internal/logger"
	"github.com/akave-ai/logpipe/internal/observability"
	"github.com/akave-ai/logpipe/internal/repository"
	"github.com/akave-ai/logpipe/internal/server"
)

// store is the consumer's handle on the database; closing it closes the pool.
type store struct {
	*repository.RawLogRepository
	pool *pgxpool.Pool
}

func (s *store) Close() { s.pool.Close() }

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(config.ForConsumer)
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	lg := logger.New(cfg.Primary.Env, cfg.Primary.LogLevel, cfg.Observability.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nrApp, err := observability.NewApplication(cfg.Observability, lg)
	if err != nil {
		lg.Error().Err(err).Msg("observability")
		return 1
	}
	defer observability.Shutdown(nrApp)

	var repo atomic.Pointer[repository.RawLogRepository]
	deps := consumer.Deps{
		ConnectStore: func(ctx context.Context) (consumer.Store, error) {
			pool, err := database.NewPool(ctx, cfg.Database, lg)
			if err != nil {
				return nil, err
			}
			r := repository.NewRawLogRepository(pool)
			repo.Store(r)
			return &store{RawLogRepository: r, pool: pool}, nil
		},
		ConnectBroker: func(ctx context.Context) (broker.Subscriber, error) {
			b, err := broker.NewRedis(ctx, cfg.Broker.URL, lg)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Provision: provisioner(cfg.Consumer.ProvisionMode, lg),
	}

	status := consumer.NewStatus()
	retry := consumer.RetryPolicy{
		Interval:    cfg.Consumer.RetryInterval,
		MaxAttempts: cfg.Consumer.MaxConnectAttempts,
	}
	sv := consumer.NewSupervisor(cfg.Broker.Channel, retry, deps, status, nrApp, lg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sv.Run(ctx); err != nil {
			// The HTTP server keeps running; /readyz reports the failure.
			lg.Error().Err(err).Msg("consumer gave up, ingestion halted")
		}
	}()

	logs := &handler.LogHandler{Source: func() handler.RecentLister {
		if r := repo.Load(); r != nil {
			return r
		}
		return nil
	}}
	srv := server.New(cfg, &handler.HealthHandler{Status: status}, logs, lg)
	if err := srv.Start(ctx); err != nil {
		lg.Error().Err(err).Msg("server exited")
		stop()
		wg.Wait()
		return 1
	}

	wg.Wait()
	lg.Info().Msg("consumer stopped")
	return 0
}

// errForeignStore is returned when the supervisor hands provisioning a store
// that was not opened by this binary.
var errForeignStore = errors.New("provision: store is not backed by a postgres pool")

func provisioner(mode config.ProvisionMode, lg zerolog.Logger) func(context.Context, consumer.Store) error {
	switch mode {
	case config.ProvisionEnsure:
		return func(ctx context.Context, s consumer.Store) error {
			st, ok := s.(*store)
			if !ok {
				return backoff.Permanent(fmt.Errorf("%w: %T", errForeignStore, s))
			}
			return st.EnsureSchema(ctx)
		}
	case config.ProvisionMigrate:
		return func(ctx context.Context, s consumer.Store) error {
			st, ok := s.(*store)
			if !ok {
				return backoff.Permanent(fmt.Errorf("%w: %T", errForeignStore, s))
			}
			version, err := database.Migrate(ctx, st.pool, lg)
			if err != nil {
				return err
			}
			lg.Info().Int32("version", version).Msg("schema migrated")
			return nil
		}
	default:
		return nil
	}
}
