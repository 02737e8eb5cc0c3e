package alert

import (
	"context"
	"time"
)

// Repository defines the interface for durable alert history storage.
// The dispatcher works memory-only when no repository is configured.
type Repository interface {
	// SaveAlert persists one alert record.
	SaveAlert(ctx context.Context, a Alert) error

	// MarkResolved records the resolution of an alert.
	MarkResolved(ctx context.Context, id string, resolvedAt time.Time, note string) error

	// ListAlerts returns persisted alerts newest first, up to limit.
	ListAlerts(ctx context.Context, limit int) ([]Alert, error)

	// PruneAlerts deletes alerts created before the cutoff.
	PruneAlerts(ctx context.Context, cutoff time.Time) error
}
