package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/pkg/errors"
)

// CostRepository persists cost events.
type CostRepository struct {
	db     *sql.DB
	driver string
}

// NewCostRepository creates a new cost event repository.
func NewCostRepository(db *sql.DB, driver string) budget.Repository {
	return &CostRepository{db: db, driver: driver}
}

func (r *CostRepository) SaveEvent(ctx context.Context, e budget.Event) error {
	query := rebind(r.driver, `
		INSERT INTO cost_events (id, service, operation, cost, currency, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Service, e.Operation, e.Cost, e.Currency,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.StorageError("failed to save cost event", err)
	}
	return nil
}

func (r *CostRepository) ListEvents(ctx context.Context, since time.Time) ([]budget.Event, error) {
	query := rebind(r.driver, `
		SELECT id, service, operation, cost, currency, recorded_at
		FROM cost_events WHERE recorded_at >= ? ORDER BY recorded_at ASC
	`)

	rows, err := r.db.QueryContext(ctx, query, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.StorageError("failed to list cost events", err)
	}
	defer rows.Close()

	var out []budget.Event
	for rows.Next() {
		var e budget.Event
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.Service, &e.Operation, &e.Cost, &e.Currency, &recordedAt); err != nil {
			return nil, errors.StorageError("failed to scan cost event", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, recordedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *CostRepository) PruneEvents(ctx context.Context, cutoff time.Time) error {
	query := rebind(r.driver, `DELETE FROM cost_events WHERE recorded_at < ?`)

	_, err := r.db.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.StorageError("failed to prune cost events", err)
	}
	return nil
}
