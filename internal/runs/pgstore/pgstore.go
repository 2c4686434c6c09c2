// Package pgstore provides a PostgreSQL implementation of runs.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdwatch/mdwatch/internal/runs"
)

var tracer = otel.Tracer("github.com/mdwatch/mdwatch/internal/runs/pgstore")

//go:embed schema.sql
var schema string

// Store persists scan runs in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on the given pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const runColumns = `id, status, trigger_kind, started_at, completed_at, duration_s,
	feeds_scanned, feed_errors, entries_seen, entries_matched,
	incidents_extracted, duplicates, incidents_new, pull_request_url, error`

// Get retrieves a scan run by ID.
func (s *Store) Get(ctx context.Context, id string) (*runs.Run, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + runColumns + ` FROM scan_runs WHERE id = $1`
	r, err := scanRunRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	return r, true, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*runs.Run, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM scan_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*runs.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Put inserts or updates a scan run.
func (s *Store) Put(ctx context.Context, r *runs.Run) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	query := `
		INSERT INTO scan_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_s = EXCLUDED.duration_s,
			feeds_scanned = EXCLUDED.feeds_scanned,
			feed_errors = EXCLUDED.feed_errors,
			entries_seen = EXCLUDED.entries_seen,
			entries_matched = EXCLUDED.entries_matched,
			incidents_extracted = EXCLUDED.incidents_extracted,
			duplicates = EXCLUDED.duplicates,
			incidents_new = EXCLUDED.incidents_new,
			pull_request_url = EXCLUDED.pull_request_url,
			error = EXCLUDED.error`

	_, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Status), r.Trigger, r.StartedAt, completedAt, r.Duration,
		r.FeedsScanned, r.FeedErrors, r.EntriesSeen, r.EntriesMatched,
		r.IncidentsExtracted, r.Duplicates, r.IncidentsNew,
		nullIfEmpty(r.PullRequestURL), nullIfEmpty(r.Error),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row pgx.Row) (*runs.Run, error) {
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

func scanRun(row rowScanner) (*runs.Run, error) {
	var (
		r           runs.Run
		completedAt *time.Time
		duration    *float64
		prURL       *string
		errText     *string
	)
	err := row.Scan(
		&r.ID, &r.Status, &r.Trigger, &r.StartedAt, &completedAt, &duration,
		&r.FeedsScanned, &r.FeedErrors, &r.EntriesSeen, &r.EntriesMatched,
		&r.IncidentsExtracted, &r.Duplicates, &r.IncidentsNew, &prURL, &errText,
	)
	if err != nil {
		return nil, err
	}
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	if duration != nil {
		r.Duration = *duration
	}
	if prURL != nil {
		r.PullRequestURL = *prURL
	}
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
