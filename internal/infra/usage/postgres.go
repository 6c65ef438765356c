package usage

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/genroute/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresSink mirrors attempt records into Postgres for dashboards. The
// JSONL log stays the primary record; this sink is optional and its write
// failures are swallowed like every other recorder's.
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink connects, runs the embedded migrations and returns the
// sink.
func NewPostgresSink(ctx context.Context, url string) (*PostgresSink, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(time.Hour)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresSink{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Record inserts the record. Failures are downgraded to a debug trace.
func (s *PostgresSink) Record(rec domain.AttemptRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_attempts
			(recorded_at, success, task, tier, model_key, provider,
			 request_id, duration_ms, content_hash, attempt_number, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Timestamp, rec.Success, rec.Task, rec.Tier, string(rec.Model),
		rec.Provider, rec.RequestID, rec.DurationMS, rec.ContentHash,
		rec.Attempt, joinErrors(rec.Errors),
	)
	if err != nil {
		slog.Debug("Usage postgres insert failed", "error", err)
	}
}

func joinErrors(errs []string) *string {
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined += "; " + e
	}
	return &joined
}
