package alert

import "time"

// Dispatcher defines the interface for alert routing business logic.
type Dispatcher interface {
	// Trigger records an alert and, when an enabled rule matches outside
	// its cooldown, fans delivery out to the rule's channels. Delivery is
	// fire and forget. Returns the recorded alert's ID.
	Trigger(t Trigger) string

	// Resolve marks an active alert resolved. Returns false when the
	// alert is unknown or already resolved.
	Resolve(id, note string) bool

	// AddRule registers a rule. Rules with an empty ID are assigned one.
	AddRule(rule Rule) (string, error)

	// UpdateRule replaces an existing rule. Returns false on unknown ID.
	UpdateRule(rule Rule) (bool, error)

	// RemoveRule unregisters a rule. Returns false on unknown ID.
	RemoveRule(id string) bool

	// GetRules returns a snapshot of all registered rules.
	GetRules() []Rule

	// GetActiveAlerts returns a snapshot of unresolved alerts, newest
	// first.
	GetActiveAlerts() []Alert

	// GetAlertHistory returns a snapshot of the history, newest first,
	// up to limit (0 means all).
	GetAlertHistory(limit int) []Alert

	// GetAlertStats aggregates history over the trailing window.
	GetAlertStats(window time.Duration) Stats
}
