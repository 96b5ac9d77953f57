// Package pgstate provides a PostgreSQL implementation of
// monitor.Persistence. Save replaces the whole record set in one transaction
// so a subsequent Load never observes partial state.
package pgstate

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/slawatch/internal/monitor"
)

var tracer = otel.Tracer("github.com/linnemanlabs/slawatch/internal/monitor/pgstate")

//go:embed schema.sql
var schema string

// Store persists alert records in PostgreSQL.
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

// Load reads all alert records.
func (s *Store) Load(ctx context.Context) (map[monitor.Key]*monitor.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstate.Load", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT channel_id, message_id, last_alert_at, snoozed_until, handled, alerted FROM alert_records`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query alert_records: %w", err)
	}
	defer rows.Close()

	out := make(map[monitor.Key]*monitor.Record)
	for rows.Next() {
		var (
			key          monitor.Key
			rec          monitor.Record
			lastAlertAt  *time.Time
			snoozedUntil *time.Time
		)
		if err := rows.Scan(&key.ChannelID, &key.MessageID, &lastAlertAt, &snoozedUntil, &rec.Handled, &rec.Alerted); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scan alert record: %w", err)
		}
		if lastAlertAt != nil {
			rec.LastAlertAt = lastAlertAt.UTC()
		}
		if snoozedUntil != nil {
			rec.SnoozedUntil = snoozedUntil.UTC()
		}
		out[key] = &rec
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate alert_records: %w", err)
	}

	span.SetAttributes(attribute.Int("slawatch.records", len(out)))
	return out, nil
}

// Save replaces the stored record set inside one transaction.
func (s *Store) Save(ctx context.Context, records map[monitor.Key]*monitor.Record) error {
	ctx, span := tracer.Start(ctx, "pgstate.Save", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "REPLACE"),
		attribute.Int("slawatch.records", len(records)),
	))
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `DELETE FROM alert_records`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("clear alert_records: %w", err)
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for key, rec := range records {
			batch.Queue(
				`INSERT INTO alert_records (channel_id, message_id, last_alert_at, snoozed_until, handled, alerted, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, now())`,
				key.ChannelID, key.MessageID,
				nullableTime(rec.LastAlertAt), nullableTime(rec.SnoozedUntil),
				rec.Handled, rec.Alerted,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("insert alert_records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
