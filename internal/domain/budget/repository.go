package budget

import (
	"context"
	"time"
)

// Repository defines the interface for durable cost event storage.
// The tracker works memory-only when no repository is configured.
type Repository interface {
	// SaveEvent persists one cost event.
	SaveEvent(ctx context.Context, e Event) error

	// ListEvents returns events recorded since the cutoff, oldest first.
	ListEvents(ctx context.Context, since time.Time) ([]Event, error)

	// PruneEvents deletes events recorded before the cutoff.
	PruneEvents(ctx context.Context, cutoff time.Time) error
}
