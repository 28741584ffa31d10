package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/akave-ai/logpipe/internal/model"
)

// DBTX is the subset of pgx used here. *pgxpool.Pool, *pgx.Conn and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CreateRawLogsTable is idempotent; running it against an existing table is a no-op.
const CreateRawLogsTable = `
	CREATE TABLE IF NOT EXISTS raw_logs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		status_code VARCHAR(3) NOT NULL,
		ip_address VARCHAR(15)
	)`

// RawLogRepository persists and reads raw_logs rows.
type RawLogRepository struct {
	db DBTX
}

// NewRawLogRepository returns a RawLogRepository using the given pool or connection.
func NewRawLogRepository(db DBTX) *RawLogRepository {
	return &RawLogRepository{db: db}
}

// EnsureSchema creates raw_logs if it does not exist.
func (r *RawLogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, CreateRawLogsTable); err != nil {
		return fmt.Errorf("create raw_logs: %w", err)
	}
	return nil
}

// Insert writes one row and sets its ID. Each call is its own implicit transaction.
func (r *RawLogRepository) Insert(ctx context.Context, row *model.RawLog) error {
	query := `
		INSERT INTO raw_logs (timestamp, status_code, ip_address)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRow(ctx, query, row.Timestamp, row.StatusCode, row.IPAddress).Scan(&row.ID); err != nil {
		return fmt.Errorf("insert raw log: %w", err)
	}
	return nil
}

// ListRecent returns up to limit rows, newest first.
func (r *RawLogRepository) ListRecent(ctx context.Context, limit int) ([]model.RawLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, timestamp, status_code, ip_address
		FROM raw_logs
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]model.RawLog, 0, limit)
	for rows.Next() {
		var row model.RawLog
		if err := rows.Scan(&row.ID, &row.Timestamp, &row.StatusCode, &row.IPAddress); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// Count returns the number of persisted rows.
func (r *RawLogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM raw_logs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
