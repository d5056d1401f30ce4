// Package pgstore provides a PostgreSQL implementation of audit.Store.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/pulse/internal/audit"
)

var tracer = otel.Tracer("github.com/linnemanlabs/pulse/internal/audit/pgstore")

//go:embed schema.sql
var schema string

// Store persists audit records in PostgreSQL.
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

// Append inserts one audit record.
func (s *Store) Append(ctx context.Context, r *audit.Record) error {
	ctx, span := tracer.Start(ctx, "pgstore.Append", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "INSERT"),
	))
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO claim_audit (id, alert_id, action, actor_id, previous_owner, reason, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.AlertID, string(r.Action), r.ActorID, r.PreviousOwner, r.Reason, r.At,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListByAlert returns the audit records for one alert, oldest first.
func (s *Store) ListByAlert(ctx context.Context, alertID string) ([]audit.Record, error) {
	ctx, span := tracer.Start(ctx, "pgstore.ListByAlert", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT id, alert_id, action, actor_id, previous_owner, reason, at
		 FROM claim_audit WHERE alert_id = $1 ORDER BY at, id`,
		alertID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		var action string
		if err := rows.Scan(&r.ID, &r.AlertID, &action, &r.ActorID, &r.PreviousOwner, &r.Reason, &r.At); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Action = audit.Action(action)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}
