package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/pkg/errors"
)

// AlertRepository persists alert history.
type AlertRepository struct {
	db     *sql.DB
	driver string
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB, driver string) alert.Repository {
	return &AlertRepository{db: db, driver: driver}
}

func (r *AlertRepository) SaveAlert(ctx context.Context, a alert.Alert) error {
	query := rebind(r.driver, `
		INSERT INTO alerts (id, type, severity, message, value, delivered, resolved, resolved_at, resolution, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var resolvedAt interface{}
	if a.ResolvedAt != nil {
		resolvedAt = a.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Type, a.Severity, a.Message, a.Value,
		boolToInt(a.Delivered), boolToInt(a.Resolved),
		resolvedAt, a.Resolution, a.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.StorageError("failed to save alert", err)
	}
	return nil
}

func (r *AlertRepository) MarkResolved(ctx context.Context, id string, resolvedAt time.Time, note string) error {
	query := rebind(r.driver, `
		UPDATE alerts SET resolved = 1, resolved_at = ?, resolution = ? WHERE id = ?
	`)

	_, err := r.db.ExecContext(ctx, query,
		resolvedAt.UTC().Format(time.RFC3339Nano), note, id)
	if err != nil {
		return errors.StorageError("failed to mark alert resolved", err)
	}
	return nil
}

func (r *AlertRepository) ListAlerts(ctx context.Context, limit int) ([]alert.Alert, error) {
	query := rebind(r.driver, `
		SELECT id, type, severity, message, value, delivered, resolved, resolved_at, resolution, created_at
		FROM alerts ORDER BY created_at DESC LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.StorageError("failed to list alerts", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var delivered, resolved int
		var resolvedAt sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &a.Value,
			&delivered, &resolved, &resolvedAt, &a.Resolution, &createdAt); err != nil {
			return nil, errors.StorageError("failed to scan alert", err)
		}
		a.Delivered = delivered != 0
		a.Resolved = resolved != 0
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if resolvedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
			if err == nil {
				a.ResolvedAt = &t
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AlertRepository) PruneAlerts(ctx context.Context, cutoff time.Time) error {
	query := rebind(r.driver, `DELETE FROM alerts WHERE created_at < ?`)

	_, err := r.db.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.StorageError("failed to prune alerts", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
