package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/pkg/errors"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/pkg/metrics"
	"github.com/burnwatch/burnwatch/internal/pkg/validator"
)

// maxAlertHistory caps the in-memory history; oldest entries are
// dropped first.
const maxAlertHistory = 1000

// alertRetention bounds how long persisted alerts are kept in the audit
// store.
const alertRetention = 30 * 24 * time.Hour

// Notifier delivers one alert over one channel. Implemented by the
// notification service.
type Notifier interface {
	Send(ctx context.Context, channel string, a alert.Alert) error
}

// AlertDispatcher implements alert.Dispatcher. Every trigger is
// recorded in history; delivery happens only for enabled matching rules
// outside their cooldown, in goroutines after state mutation.
type AlertDispatcher struct {
	mu        sync.Mutex
	rules     map[string]alert.Rule
	active    map[string]*alert.Alert
	history   []alert.Alert
	lastFired map[string]time.Time

	notifier Notifier
	repo     alert.Repository
	validate *validator.Validator
	logger   *logger.Logger
	nowFn    func() time.Time
}

// NewAlertDispatcher creates a new alert dispatcher. The repository is
// optional; nil means memory-only history.
func NewAlertDispatcher(notifier Notifier, repo alert.Repository, log *logger.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		rules:     make(map[string]alert.Rule),
		active:    make(map[string]*alert.Alert),
		lastFired: make(map[string]time.Time),
		notifier:  notifier,
		repo:      repo,
		validate:  validator.New(),
		logger:    log,
		nowFn:     time.Now,
	}
}

// LoadHistory warms the in-memory state from the audit store after a
// restart. Unresolved alerts re-enter the active set so they can still
// be resolved.
func (d *AlertDispatcher) LoadHistory(ctx context.Context) error {
	if d.repo == nil {
		return nil
	}
	alerts, err := d.repo.ListAlerts(ctx, maxAlertHistory)
	if err != nil {
		return err
	}

	d.mu.Lock()
	// ListAlerts returns newest first; history is kept in insertion
	// order.
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		d.history = append(d.history, a)
		if !a.Resolved {
			restored := a
			d.active[a.ID] = &restored
		}
	}
	activeCount := len(d.active)
	d.mu.Unlock()

	metrics.SetActiveAlerts(float64(activeCount))
	d.logger.Infof("Restored %d alerts from the audit store", len(alerts))
	return nil
}

// PruneHistory deletes persisted alerts past retention. The in-memory
// history is already capped; this bounds the audit store too. Driven by
// the periodic tick; failures are logged, never propagated.
func (d *AlertDispatcher) PruneHistory() {
	if d.repo == nil {
		return
	}
	cutoff := d.nowFn().Add(-alertRetention)
	if err := d.repo.PruneAlerts(context.Background(), cutoff); err != nil {
		d.logger.ErrorWithErr(err, "Failed to prune persisted alerts")
	}
}

// Trigger records an alert and fans delivery out to the channels of
// every enabled matching rule outside its cooldown. Returns the new
// alert's ID.
func (d *AlertDispatcher) Trigger(t alert.Trigger) string {
	d.mu.Lock()
	now := d.nowFn()
	a := alert.Alert{
		ID:        uuid.New().String(),
		Type:      t.Type,
		Severity:  t.Severity,
		Message:   t.Message,
		Value:     t.Value,
		Metadata:  t.Metadata,
		CreatedAt: now,
	}

	var channels []string
	for _, rule := range d.rules {
		if !rule.Enabled || rule.Metric != t.Type {
			continue
		}
		if !rule.Condition.Match(t.Value, rule.Threshold) {
			continue
		}
		if last, ok := d.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown() {
			metrics.RecordAlertSuppressed()
			d.logger.WithFields(map[string]interface{}{
				"rule": rule.Name,
				"type": t.Type,
			}).Debug("Alert delivery suppressed by cooldown")
			continue
		}
		d.lastFired[rule.ID] = now
		channels = append(channels, rule.Channels...)
	}
	a.Delivered = len(channels) > 0

	d.active[a.ID] = &a
	d.history = append(d.history, a)
	if len(d.history) > maxAlertHistory {
		d.history = d.history[len(d.history)-maxAlertHistory:]
	}
	activeCount := len(d.active)
	d.mu.Unlock()

	metrics.RecordAlertFired(t.Type, t.Severity)
	metrics.SetActiveAlerts(float64(activeCount))

	d.logger.WithFields(map[string]interface{}{
		"alert_id":  a.ID,
		"type":      a.Type,
		"severity":  a.Severity,
		"delivered": a.Delivered,
	}).Info("Alert triggered")

	if d.notifier != nil {
		for _, ch := range dedupe(channels) {
			go d.deliver(ch, a)
		}
	}
	if d.repo != nil {
		go func() {
			if err := d.repo.SaveAlert(context.Background(), a); err != nil {
				d.logger.ErrorWithErr(err, "Failed to persist alert")
			}
		}()
	}
	return a.ID
}

// deliver sends one alert over one channel. Failures are logged and
// counted, never propagated.
func (d *AlertDispatcher) deliver(channel string, a alert.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.notifier.Send(ctx, channel, a); err != nil {
		metrics.RecordNotification(channel, "error")
		d.logger.WithFields(map[string]interface{}{
			"alert_id": a.ID,
			"channel":  channel,
		}).ErrorWithErr(err, "Failed to deliver alert")
		return
	}
	metrics.RecordNotification(channel, "ok")
}

// Resolve marks an active alert resolved. A second call for the same
// alert returns false.
func (d *AlertDispatcher) Resolve(id, note string) bool {
	d.mu.Lock()
	a, ok := d.active[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	now := d.nowFn()
	a.Resolved = true
	a.ResolvedAt = &now
	a.Resolution = note
	delete(d.active, id)
	for i := range d.history {
		if d.history[i].ID == id {
			d.history[i] = *a
			break
		}
	}
	activeCount := len(d.active)
	d.mu.Unlock()

	metrics.SetActiveAlerts(float64(activeCount))
	d.logger.Infof("Alert resolved: %s", id)

	if d.repo != nil {
		go func() {
			if err := d.repo.MarkResolved(context.Background(), id, now, note); err != nil {
				d.logger.ErrorWithErr(err, "Failed to persist alert resolution")
			}
		}()
	}
	return true
}

// AddRule registers a rule. Rules without an ID are assigned one.
func (d *AlertDispatcher) AddRule(rule alert.Rule) (string, error) {
	if errs := d.validate.Validate(rule); len(errs) > 0 {
		return "", errors.ValidationError("invalid alert rule", errs)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	d.mu.Lock()
	d.rules[rule.ID] = rule
	d.mu.Unlock()

	d.logger.WithFields(map[string]interface{}{
		"rule_id": rule.ID,
		"name":    rule.Name,
		"metric":  rule.Metric,
	}).Info("Alert rule added")

	return rule.ID, nil
}

// UpdateRule replaces an existing rule.
func (d *AlertDispatcher) UpdateRule(rule alert.Rule) (bool, error) {
	if errs := d.validate.Validate(rule); len(errs) > 0 {
		return false, errors.ValidationError("invalid alert rule", errs)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rules[rule.ID]; !ok {
		return false, nil
	}
	d.rules[rule.ID] = rule
	return true, nil
}

// RemoveRule unregisters a rule and its cooldown state.
func (d *AlertDispatcher) RemoveRule(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.rules[id]; !ok {
		return false
	}
	delete(d.rules, id)
	delete(d.lastFired, id)
	return true
}

// GetRules returns a snapshot of all registered rules.
func (d *AlertDispatcher) GetRules() []alert.Rule {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]alert.Rule, 0, len(d.rules))
	for _, r := range d.rules {
		out = append(out, r)
	}
	return out
}

// GetActiveAlerts returns a snapshot of unresolved alerts, newest first.
func (d *AlertDispatcher) GetActiveAlerts() []alert.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]alert.Alert, 0, len(d.active))
	for _, a := range d.active {
		out = append(out, *a)
	}
	sortAlertsNewestFirst(out)
	return out
}

// GetAlertHistory returns a snapshot of the history, newest first, up
// to limit (0 means all).
func (d *AlertDispatcher) GetAlertHistory(limit int) []alert.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]alert.Alert, len(d.history))
	copy(out, d.history)
	sortAlertsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// GetAlertStats aggregates history over the trailing window.
func (d *AlertDispatcher) GetAlertStats(window time.Duration) alert.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := alert.Stats{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}
	cutoff := d.nowFn().Add(-window)
	for _, a := range d.history {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.BySeverity[a.Severity]++
		stats.ByType[a.Type]++
		if !a.Resolved {
			stats.Unresolved++
		}
	}
	return stats
}

func sortAlertsNewestFirst(alerts []alert.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DisabledDispatcher is a no-op alert.Dispatcher, used when alerting is
// turned off in configuration.
type DisabledDispatcher struct{}

// NewDisabledDispatcher creates a dispatcher that drops everything.
func NewDisabledDispatcher() *DisabledDispatcher {
	return &DisabledDispatcher{}
}

func (DisabledDispatcher) Trigger(alert.Trigger) string              { return "" }
func (DisabledDispatcher) Resolve(string, string) bool               { return false }
func (DisabledDispatcher) AddRule(alert.Rule) (string, error)        { return "", nil }
func (DisabledDispatcher) UpdateRule(alert.Rule) (bool, error)       { return false, nil }
func (DisabledDispatcher) RemoveRule(string) bool                    { return false }
func (DisabledDispatcher) GetRules() []alert.Rule                    { return nil }
func (DisabledDispatcher) GetActiveAlerts() []alert.Alert            { return nil }
func (DisabledDispatcher) GetAlertHistory(int) []alert.Alert         { return nil }
func (DisabledDispatcher) GetAlertStats(time.Duration) alert.Stats   { return alert.Stats{} }
