// Package pgstore is the PostgreSQL-backed store.History, adapted from
// vigil's internal/triage/pgstore (pool + schema-on-connect + upsert
// pattern) and internal/postgres's query tracer, which it reuses
// unmodified for structured per-query logging and tracing.
package pgstore

import (
	_ "embed"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/nightwatch/internal/postgres"
	"github.com/linnemanlabs/nightwatch/internal/store"
)

var tracer = otel.Tracer("github.com/linnemanlabs/nightwatch/internal/store/pgstore")

//go:embed schema.sql
var schema string

// Store persists session and alert history in PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	owned bool
}

// New connects to PostgreSQL via internal/postgres.NewPool (so every
// query carries the shared otelpgx span plus structured query logging),
// applies the schema, and returns a ready Store that owns the pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewPool: %w", err)
	}
	s, err := NewWithPool(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewWithPool applies the schema to an already-connected pool (e.g. one
// constructed once in main and shared with other stores) and returns a
// ready Store. The caller retains ownership of pool and must close it.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool, if this Store was the one that
// created it via New.
func (s *Store) Close() {
	if s.owned {
		s.pool.Close()
	}
}

// PutSession upserts a session record.
func (s *Store) PutSession(ctx context.Context, rec *store.SessionRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutSession", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var endedAt *time.Time
	if !rec.EndedAt.IsZero() {
		endedAt = &rec.EndedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, started_at, ended_at, images_captured, total_exposure_s, error_count, last_error, target_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			ended_at         = EXCLUDED.ended_at,
			images_captured  = EXCLUDED.images_captured,
			total_exposure_s = EXCLUDED.total_exposure_s,
			error_count      = EXCLUDED.error_count,
			last_error       = EXCLUDED.last_error,
			target_name      = EXCLUDED.target_name`,
		rec.ID, rec.StartedAt, endedAt, rec.ImagesCaptured, rec.TotalExposureSec, rec.ErrorCount, rec.LastError, rec.TargetName,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ListSessions returns up to limit sessions, most recently started
// first. limit <= 0 means no limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*store.SessionRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListSessions", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT id, started_at, ended_at, images_captured, total_exposure_s, error_count, last_error, target_name
		FROM sessions ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.SessionRecord
	for rows.Next() {
		var rec store.SessionRecord
		var endedAt *time.Time
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &endedAt, &rec.ImagesCaptured,
			&rec.TotalExposureSec, &rec.ErrorCount, &rec.LastError, &rec.TargetName); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if endedAt != nil {
			rec.EndedAt = *endedAt
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// PutAlert upserts an alert record (used both for the initial raise and
// later acknowledgment updates).
func (s *Store) PutAlert(ctx context.Context, rec *store.AlertRecord) error {
	ctx, span := tracer.Start(ctx, "pgstore.PutAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	var ackAt *time.Time
	if !rec.AcknowledgedAt.IsZero() {
		ackAt = &rec.AcknowledgedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, level, source, message, at, acknowledged, acknowledged_by, acknowledged_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			acknowledged    = EXCLUDED.acknowledged,
			acknowledged_by = EXCLUDED.acknowledged_by,
			acknowledged_at = EXCLUDED.acknowledged_at`,
		rec.ID, rec.Level, rec.Source, rec.Message, rec.At, rec.Acknowledged, rec.AcknowledgedBy, ackAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert alert: %w", err)
	}
	return nil
}

// ListAlerts returns up to limit alerts, most recent first. limit <= 0
// means no limit.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*store.AlertRecord, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListAlerts", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT id, level, source, message, at, acknowledged, acknowledged_by, acknowledged_at
		FROM alerts ORDER BY at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []*store.AlertRecord
	for rows.Next() {
		var rec store.AlertRecord
		var ackBy *string
		var ackAt *time.Time
		if err := rows.Scan(&rec.ID, &rec.Level, &rec.Source, &rec.Message, &rec.At,
			&rec.Acknowledged, &ackBy, &ackAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if ackBy != nil {
			rec.AcknowledgedBy = *ackBy
		}
		if ackAt != nil {
			rec.AcknowledgedAt = *ackAt
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

var _ store.History = (*Store)(nil)
