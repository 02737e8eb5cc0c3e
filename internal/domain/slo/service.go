package slo

import "time"

// Service defines the interface for SLO tracking business logic.
type Service interface {
	// AddTarget registers a target and initializes its window and
	// status. Registration fails on invalid configuration.
	AddTarget(target Target) error

	// RemoveTarget unregisters a target and frees its window, status
	// and violations. Returns false if the target is unknown.
	RemoveTarget(service, metric string) bool

	// RecordMetric appends a sample to the target's window and
	// re-evaluates synchronously. Unknown targets are a no-op.
	RecordMetric(service, metric string, value float64, ts time.Time)

	// EvaluateAll re-evaluates every registered target, used by the
	// periodic tick so budget decay is detected without new samples.
	EvaluateAll()

	// GetSLOStatus returns a snapshot of current statuses, optionally
	// filtered by service ("" means all).
	GetSLOStatus(service string) []Status

	// GetSLOSummary returns the fleet-wide rollup.
	GetSLOSummary() Summary

	// GetViolations returns a snapshot of recorded violations, newest
	// first, up to limit (0 means all).
	GetViolations(limit int) []Violation
}
