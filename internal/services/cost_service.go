package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/pkg/errors"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/pkg/metrics"
	"github.com/burnwatch/burnwatch/internal/pkg/validator"
)

const (
	// eventRetention bounds the in-memory cost event log. Long enough
	// for a full monthly window plus trailing breakdown queries.
	eventRetention = 60 * 24 * time.Hour

	// thresholdBandWidth is the percentage-point width of each
	// threshold band. A threshold alert fires only while the spend
	// percentage sits inside [f*100, f*100+bandWidth).
	thresholdBandWidth = 5.0

	// thresholdMemory bounds the per-band last-fired bookkeeping.
	thresholdMemory = 30 * 24 * time.Hour
)

// defaultAlertThresholds apply when a budget is configured without any.
var defaultAlertThresholds = []float64{0.5, 0.75, 0.9, 1.0}

// CostTracker implements budget.Service. It owns the append-only cost
// event log and the per-service summaries, recomputed synchronously on
// every insert.
type CostTracker struct {
	mu        sync.Mutex
	configs   map[string]budget.Config
	events    []budget.Event
	summaries map[string]budget.Summary

	// last-fired time per service|fraction band, cleared when spend
	// drops back below the band
	thresholdFired map[string]time.Time

	dispatcher alert.Dispatcher
	repo       budget.Repository
	validate   *validator.Validator
	logger     *logger.Logger
	nowFn      func() time.Time
}

// NewCostTracker creates a new cost tracker. The repository is optional;
// nil means memory-only operation.
func NewCostTracker(dispatcher alert.Dispatcher, repo budget.Repository, log *logger.Logger) *CostTracker {
	return &CostTracker{
		configs:        make(map[string]budget.Config),
		summaries:      make(map[string]budget.Summary),
		thresholdFired: make(map[string]time.Time),
		dispatcher:     dispatcher,
		repo:           repo,
		validate:       validator.New(),
		logger:         log,
		nowFn:          time.Now,
	}
}

// SetBudget registers or replaces the budget configuration for a
// service.
func (c *CostTracker) SetBudget(cfg budget.Config) error {
	if errs := c.validate.Validate(cfg); len(errs) > 0 {
		return errors.ValidationError("invalid budget config", errs)
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if len(cfg.AlertThresholds) == 0 {
		cfg.AlertThresholds = defaultAlertThresholds
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.configs[cfg.Service] = cfg
	c.recomputeLocked(cfg.Service)
	c.recomputeLocked(budget.TotalService)

	c.logger.WithFields(map[string]interface{}{
		"service":       cfg.Service,
		"daily_limit":   cfg.DailyLimit,
		"monthly_limit": cfg.MonthlyLimit,
	}).Info("Budget configured")

	return nil
}

// RemoveBudget unregisters a service's budget and summary.
func (c *CostTracker) RemoveBudget(service string) bool {
	c.mu.Lock()
	if _, ok := c.configs[service]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.configs, service)
	delete(c.summaries, service)
	for key := range c.thresholdFired {
		if serviceOfBandKey(key) == service {
			delete(c.thresholdFired, key)
		}
	}
	c.recomputeLocked(budget.TotalService)
	// The summed limits changed, so the total aggregate's bands must be
	// re-derived: a stale entry would suppress the next crossing.
	triggers := c.thresholdTriggersLocked(budget.TotalService)
	c.mu.Unlock()

	c.logger.Infof("Budget removed: %s", service)

	if c.dispatcher != nil {
		for _, t := range triggers {
			c.dispatcher.Trigger(t)
		}
	}
	return true
}

// LoadEvents rebuilds the in-memory event log from the audit store
// after a restart, bounded by the retention window.
func (c *CostTracker) LoadEvents(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	events, err := c.repo.ListEvents(ctx, c.nowFn().Add(-eventRetention))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.events = append(events, c.events...)
	for service := range c.configs {
		c.recomputeLocked(service)
	}
	c.recomputeLocked(budget.TotalService)
	c.mu.Unlock()

	c.logger.Infof("Restored %d cost events from the audit store", len(events))
	return nil
}

// RecordCost appends a cost event and recomputes the summaries for the
// service and the total aggregate. Threshold and high-cost alerts fire
// from here.
func (c *CostTracker) RecordCost(service, operation string, cost float64, currency string, ts time.Time, metadata map[string]string) {
	if currency == "" {
		currency = "USD"
	}
	if ts.IsZero() {
		ts = c.nowFn()
	}
	event := budget.Event{
		ID:        uuid.New().String(),
		Service:   service,
		Operation: operation,
		Cost:      cost,
		Currency:  currency,
		Timestamp: ts,
		Metadata:  metadata,
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.recomputeLocked(service)
	c.recomputeLocked(budget.TotalService)

	var triggers []alert.Trigger
	if cost > budget.HighCostSentinel {
		triggers = append(triggers, alert.Trigger{
			Type:     alert.TypeHighCostOperation,
			Severity: alert.SeverityWarning,
			Message:  fmt.Sprintf("High cost operation on %s: %s cost %.2f %s", service, operation, cost, currency),
			Value:    cost,
			Metadata: map[string]string{"service": service, "operation": operation},
		})
	}
	triggers = append(triggers, c.thresholdTriggersLocked(service)...)
	triggers = append(triggers, c.thresholdTriggersLocked(budget.TotalService)...)
	c.mu.Unlock()

	metrics.RecordCostEvent(service)

	if c.dispatcher != nil {
		for _, t := range triggers {
			c.dispatcher.Trigger(t)
		}
	}
	if c.repo != nil {
		go func() {
			if err := c.repo.SaveEvent(context.Background(), event); err != nil {
				c.logger.ErrorWithErr(err, "Failed to persist cost event")
			}
		}()
	}
}

// recomputeLocked rebuilds one service's summary from the event log.
// Caller holds the mutex.
func (c *CostTracker) recomputeLocked(service string) {
	now := c.nowFn()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var daily, monthly float64
	for _, e := range c.events {
		if service != budget.TotalService && e.Service != service {
			continue
		}
		if e.Timestamp.After(now) {
			continue
		}
		if !e.Timestamp.Before(monthStart) {
			monthly += e.Cost
			if !e.Timestamp.Before(dayStart) {
				daily += e.Cost
			}
		}
	}

	dailyLimit, monthlyLimit, currency := c.limitsLocked(service)
	summary := budget.Summary{
		Service:     service,
		Daily:       budget.PeriodSpend{Cost: daily, Percentage: percentage(daily, dailyLimit)},
		Monthly:     budget.PeriodSpend{Cost: monthly, Percentage: percentage(monthly, monthlyLimit)},
		Currency:    currency,
		LastUpdated: now,
	}
	c.summaries[service] = summary

	metrics.SetBudgetSpend(service, daily, monthly)
}

// limitsLocked returns the budget limits for a service. The total
// aggregate uses the sum of every configured limit.
func (c *CostTracker) limitsLocked(service string) (daily, monthly float64, currency string) {
	currency = "USD"
	if service == budget.TotalService {
		for _, cfg := range c.configs {
			daily += cfg.DailyLimit
			monthly += cfg.MonthlyLimit
			currency = cfg.Currency
		}
		return daily, monthly, currency
	}
	if cfg, ok := c.configs[service]; ok {
		return cfg.DailyLimit, cfg.MonthlyLimit, cfg.Currency
	}
	return 0, 0, currency
}

// thresholdTriggersLocked produces the banded threshold alerts for a
// service. A band fires once per crossing; the bookkeeping entry clears
// when spend falls back below the band floor. Caller holds the mutex.
func (c *CostTracker) thresholdTriggersLocked(service string) []alert.Trigger {
	thresholds := defaultAlertThresholds
	if cfg, ok := c.configs[service]; ok {
		thresholds = cfg.AlertThresholds
	} else if service != budget.TotalService {
		return nil
	}

	summary, ok := c.summaries[service]
	if !ok {
		return nil
	}

	var triggers []alert.Trigger
	now := c.nowFn()
	for _, period := range []struct {
		name  string
		spend budget.PeriodSpend
	}{
		{"daily", summary.Daily},
		{"monthly", summary.Monthly},
	} {
		for _, f := range thresholds {
			key := bandKey(service, period.name, f)
			floor := f * 100
			pct := period.spend.Percentage
			if pct < floor {
				delete(c.thresholdFired, key)
				continue
			}
			if pct >= floor+thresholdBandWidth {
				continue
			}
			if _, fired := c.thresholdFired[key]; fired {
				continue
			}
			c.thresholdFired[key] = now

			severity := alert.SeverityWarning
			if pct > 100 {
				severity = alert.SeverityCritical
			}
			triggers = append(triggers, alert.Trigger{
				Type:     alert.TypeBudgetThreshold,
				Severity: severity,
				Message: fmt.Sprintf("Budget threshold for %s: %.1f%% of %s budget spent (%.2f %s)",
					service, pct, period.name, period.spend.Cost, summary.Currency),
				Value: pct,
				Metadata: map[string]string{
					"service":   service,
					"period":    period.name,
					"threshold": fmt.Sprintf("%.0f", floor),
				},
			})
		}
	}
	return triggers
}

// GetCostSummary returns the current summary for a service.
func (c *CostTracker) GetCostSummary(service string) (budget.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.summaries[service]
	return s, ok
}

// GetCostSummaries returns a snapshot of every summary.
func (c *CostTracker) GetCostSummaries() []budget.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]budget.Summary, 0, len(c.summaries))
	for _, s := range c.summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// GetCostBreakdown aggregates spend over the trailing window. The trend
// compares the two halves of the window.
func (c *CostTracker) GetCostBreakdown(window time.Duration) budget.Breakdown {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	cutoff := now.Add(-window)
	half := now.Add(-window / 2)

	breakdown := budget.Breakdown{
		ByService:   make(map[string]float64),
		ByOperation: make(map[string]float64),
	}
	var firstHalf, secondHalf float64
	for _, e := range c.events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		breakdown.ByService[e.Service] += e.Cost
		breakdown.ByOperation[e.Operation] += e.Cost
		breakdown.Total += e.Cost
		if e.Timestamp.Before(half) {
			firstHalf += e.Cost
		} else {
			secondHalf += e.Cost
		}
	}

	switch {
	case secondHalf > firstHalf*1.1:
		breakdown.Trend = "up"
	case firstHalf > 0 && secondHalf < firstHalf*0.9:
		breakdown.Trend = "down"
	default:
		breakdown.Trend = "stable"
	}
	return breakdown
}

// GetCostProjection extrapolates spend for a service. The daily
// projection is the trailing 24h spend; the monthly projection extends
// it over the days left in the month.
func (c *CostTracker) GetCostProjection(service string) (budget.Projection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, ok := c.summaries[service]
	if !ok {
		return budget.Projection{}, false
	}

	now := c.nowFn()
	dayAgo := now.Add(-24 * time.Hour)
	var last24h float64
	for _, e := range c.events {
		if e.Timestamp.Before(dayAgo) || e.Timestamp.After(now) {
			continue
		}
		if service != budget.TotalService && e.Service != service {
			continue
		}
		last24h += e.Cost
	}

	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	daysRemaining := daysInMonth - now.Day()

	projection := budget.Projection{
		Service:           service,
		DailyProjection:   last24h,
		MonthlyProjection: summary.Monthly.Cost + last24h*float64(daysRemaining),
	}

	_, monthlyLimit, _ := c.limitsLocked(service)
	if monthlyLimit > 0 && last24h > 0 {
		remaining := monthlyLimit - summary.Monthly.Cost
		daysToExhaust := remaining / last24h
		if daysToExhaust >= 0 && daysToExhaust <= 31 {
			date := now.Add(time.Duration(daysToExhaust * 24 * float64(time.Hour)))
			projection.BudgetExhaustionDate = &date
		}
	}
	return projection, true
}

// RefreshAll recomputes every summary and prunes the event log and the
// threshold bookkeeping. Driven by the periodic tick so day and month
// rollovers are noticed without fresh events.
func (c *CostTracker) RefreshAll() {
	c.mu.Lock()
	now := c.nowFn()

	cutoff := now.Add(-eventRetention)
	kept := c.events[:0]
	for _, e := range c.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	c.events = kept

	for key, fired := range c.thresholdFired {
		if now.Sub(fired) > thresholdMemory {
			delete(c.thresholdFired, key)
		}
	}

	for service := range c.configs {
		c.recomputeLocked(service)
	}
	c.recomputeLocked(budget.TotalService)
	c.mu.Unlock()

	if c.repo != nil {
		go func() {
			if err := c.repo.PruneEvents(context.Background(), cutoff); err != nil {
				c.logger.ErrorWithErr(err, "Failed to prune cost events")
			}
		}()
	}
}

func percentage(spend, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spend / limit * 100
}

func bandKey(service, period string, fraction float64) string {
	return fmt.Sprintf("%s|%s|%.2f", service, period, fraction)
}

func serviceOfBandKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}
