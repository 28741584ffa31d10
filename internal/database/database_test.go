package database

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/logpipe/internal/config"
)

func TestMigrations_Embedded(t *testing.T) {
	data, err := fs.ReadFile(Migrations(), "001_create_raw_logs.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS raw_logs")
	assert.Contains(t, string(data), "status_code VARCHAR(3) NOT NULL")
	assert.Contains(t, string(data), "ip_address VARCHAR(15)")
}

func TestNewPool_BadURL(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{URL: "::not a url"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewPool_BadLogLevel(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{
		URL:      "postgres://user@localhost:5432/logs",
		LogLevel: "loud",
	}, zerolog.Nop())
	assert.ErrorContains(t, err, "log level")
}

func TestNewPool_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewPool(ctx, config.DatabaseConfig{
		URL: "postgres://user@127.0.0.1:1/logs?connect_timeout=1",
	}, zerolog.Nop())
	assert.ErrorContains(t, err, "ping database")
}

func TestPoolConfig_ConnectTimeout(t *testing.T) {
	cfg, err := poolConfig(config.DatabaseConfig{
		URL:            "postgres://user@10.255.255.1:5432/logs",
		ConnectTimeout: 2 * time.Second,
		MaxConns:       3,
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.ConnConfig.ConnectTimeout)
	assert.Equal(t, int32(3), cfg.MaxConns)
	assert.NotNil(t, cfg.ConnConfig.Tracer)
}

func TestNewPool_BlackholedHostFailsWithinConnectTimeout(t *testing.T) {
	start := time.Now()
	_, err := NewPool(context.Background(), config.DatabaseConfig{
		URL:            "postgres://user@10.255.255.1:5432/logs",
		ConnectTimeout: 200 * time.Millisecond,
	}, zerolog.Nop())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
