package budget

import "time"

// Service defines the interface for cost tracking business logic.
type Service interface {
	// SetBudget registers or replaces the budget configuration for a
	// service. Fails on invalid configuration.
	SetBudget(cfg Config) error

	// RemoveBudget unregisters a service's budget and summary. Returns
	// false if the service is unknown.
	RemoveBudget(service string) bool

	// RecordCost appends a cost event and synchronously recomputes the
	// summaries for the service and the "total" aggregate.
	RecordCost(service, operation string, cost float64, currency string, ts time.Time, metadata map[string]string)

	// GetCostSummary returns the current summary for a service, or
	// false if no budget is configured for it.
	GetCostSummary(service string) (Summary, bool)

	// GetCostSummaries returns a snapshot of every summary.
	GetCostSummaries() []Summary

	// GetCostBreakdown aggregates spend over the trailing window.
	GetCostBreakdown(window time.Duration) Breakdown

	// GetCostProjection extrapolates spend for a service.
	GetCostProjection(service string) (Projection, bool)

	// RefreshAll recomputes every summary and prunes the event log,
	// used by the periodic tick.
	RefreshAll()
}
