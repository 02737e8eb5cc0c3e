package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/slo"
	"github.com/burnwatch/burnwatch/internal/pkg/errors"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/pkg/metrics"
	"github.com/burnwatch/burnwatch/internal/pkg/validator"
)

// maxViolations caps the violation log; oldest entries are dropped
// first.
const maxViolations = 1000

// SLOManager implements slo.Service. It owns every target's window and
// status; all access goes through one mutex and recomputation happens
// synchronously on each write.
type SLOManager struct {
	mu         sync.Mutex
	targets    map[string]slo.Target
	windows    map[string]*metricWindow
	statuses   map[string]*slo.Status
	violations []slo.Violation

	// open alert IDs per target key, resolved when the target returns
	// to healthy
	openAlerts map[string][]string

	dispatcher alert.Dispatcher
	validate   *validator.Validator
	logger     *logger.Logger
	nowFn      func() time.Time
}

// NewSLOManager creates a new SLO manager.
func NewSLOManager(dispatcher alert.Dispatcher, log *logger.Logger) *SLOManager {
	return &SLOManager{
		targets:    make(map[string]slo.Target),
		windows:    make(map[string]*metricWindow),
		statuses:   make(map[string]*slo.Status),
		openAlerts: make(map[string][]string),
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     log,
		nowFn:      time.Now,
	}
}

// AddTarget registers a target and initializes its window and status.
func (m *SLOManager) AddTarget(target slo.Target) error {
	if errs := m.validate.Validate(target); len(errs) > 0 {
		return errors.ValidationError("invalid slo target", errs)
	}
	window, err := target.WindowDuration()
	if err != nil {
		return errors.ValidationError("invalid slo target window", err.Error())
	}
	if target.Kind == "" {
		target.Kind = slo.ResolveKind(target.Metric)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := target.Key()
	m.targets[key] = target
	m.windows[key] = newMetricWindow(window)
	m.statuses[key] = &slo.Status{
		Service:              target.Service,
		Metric:               target.Metric,
		ErrorBudgetRemaining: target.ErrorBudget,
		Status:               slo.StatusHealthy,
		Trend:                slo.TrendStable,
		EvaluatedAt:          m.nowFn(),
	}
	delete(m.openAlerts, key)

	m.logger.WithFields(map[string]interface{}{
		"service": target.Service,
		"metric":  target.Metric,
		"kind":    string(target.Kind),
		"window":  target.Window,
	}).Info("SLO target registered")

	return nil
}

// RemoveTarget unregisters a target and frees its window, status and
// violations.
func (m *SLOManager) RemoveTarget(service, metric string) bool {
	key := service + "/" + metric

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.targets[key]; !ok {
		return false
	}
	delete(m.targets, key)
	delete(m.windows, key)
	delete(m.statuses, key)
	delete(m.openAlerts, key)

	kept := m.violations[:0]
	for _, v := range m.violations {
		if v.TargetKey != key {
			kept = append(kept, v)
		}
	}
	m.violations = kept

	m.logger.Infof("SLO target removed: %s", key)
	return true
}

// RecordMetric appends a sample and re-evaluates the target
// synchronously. Unknown targets are dropped.
func (m *SLOManager) RecordMetric(service, metric string, value float64, ts time.Time) {
	key := service + "/" + metric

	m.mu.Lock()
	target, ok := m.targets[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	if ts.IsZero() {
		ts = m.nowFn()
	}
	m.windows[key].InsertAt(slo.Sample{Value: value, Timestamp: ts}, m.nowFn())
	m.fireLocked(key, m.reevaluateLocked(key, target))
	m.mu.Unlock()
}

// EvaluateAll re-evaluates every target and prunes windows and the
// violation log. Driven by the periodic tick so decay is noticed
// without fresh samples.
func (m *SLOManager) EvaluateAll() {
	m.mu.Lock()
	now := m.nowFn()
	for key, target := range m.targets {
		m.windows[key].prune(now)
		m.fireLocked(key, m.reevaluateLocked(key, target))
	}
	if len(m.violations) > maxViolations {
		m.violations = m.violations[len(m.violations)-maxViolations:]
	}
	m.mu.Unlock()
}

// reevaluateLocked recomputes one target's status and returns the alert
// triggers produced by the transition. Caller holds the mutex.
func (m *SLOManager) reevaluateLocked(key string, target slo.Target) []alert.Trigger {
	now := m.nowFn()
	samples := m.windows[key].SamplesInWindow(now)
	prev := m.statuses[key]
	next := evaluate(target, samples, prev, now)
	m.statuses[key] = &next

	metrics.RecordEvaluation(target.Service, target.Metric,
		statusLevelValue(next.Status), next.ErrorBudgetUsed, next.BurnRate)

	var triggers []alert.Trigger

	entered := prev == nil || prev.Status != next.Status
	switch {
	case next.Status == slo.StatusCritical && entered:
		m.recordViolationLocked(key, target, next)
		triggers = append(triggers, alert.Trigger{
			Type:     alert.TypeSLOViolation,
			Severity: alert.SeverityCritical,
			Message: fmt.Sprintf("SLO critical for %s/%s: %.2f%% of error budget consumed",
				target.Service, target.Metric, next.ErrorBudgetUsed/target.ErrorBudget*100),
			Value:    next.ErrorBudgetUsed,
			Metadata: triggerMetadata(target, next),
		})
	case next.Status == slo.StatusWarning && entered:
		m.recordViolationLocked(key, target, next)
		triggers = append(triggers, alert.Trigger{
			Type:     alert.TypeSLOWarning,
			Severity: alert.SeverityWarning,
			Message: fmt.Sprintf("SLO warning for %s/%s: %.2f%% of error budget consumed",
				target.Service, target.Metric, next.ErrorBudgetUsed/target.ErrorBudget*100),
			Value:    next.ErrorBudgetUsed,
			Metadata: triggerMetadata(target, next),
		})
	case next.Status == slo.StatusHealthy && prev != nil && prev.Status != slo.StatusHealthy:
		m.resolveLocked(key)
	}

	// Fast burn alerts independently of the status classification.
	if next.FastBurn && (prev == nil || !prev.FastBurn) {
		m.recordViolationLocked(key, target, next)
		triggers = append(triggers, alert.Trigger{
			Type:     alert.TypeSLOFastBurn,
			Severity: alert.SeverityCritical,
			Message: fmt.Sprintf("SLO fast burn for %s/%s: budget exhausted in %.1fh at current rate",
				target.Service, target.Metric, *next.TimeToExhaustion),
			Value:    next.BurnRate,
			Metadata: triggerMetadata(target, next),
		})
	}

	return triggers
}

// fireLocked dispatches triggers and remembers the resulting alert IDs
// so recovery can resolve them. Caller holds the mutex: dispatch and
// bookkeeping share the evaluation's critical section, so a concurrent
// recovery cannot resolve before the IDs are recorded. The dispatcher
// records and fans out asynchronously, so this never blocks on I/O.
func (m *SLOManager) fireLocked(key string, triggers []alert.Trigger) {
	if m.dispatcher == nil {
		return
	}
	for _, t := range triggers {
		m.openAlerts[key] = append(m.openAlerts[key], m.dispatcher.Trigger(t))
	}
}

// resolveLocked closes the open alerts and unresolved violations of a
// recovered target. Caller holds the mutex.
func (m *SLOManager) resolveLocked(key string) {
	now := m.nowFn()
	for i := range m.violations {
		if m.violations[i].TargetKey == key && !m.violations[i].Resolved {
			m.violations[i].Resolved = true
			t := now
			m.violations[i].ResolvedAt = &t
		}
	}
	if m.dispatcher != nil {
		for _, id := range m.openAlerts[key] {
			m.dispatcher.Resolve(id, "slo recovered")
		}
	}
	delete(m.openAlerts, key)
	m.logger.Infof("SLO recovered: %s", key)
}

func (m *SLOManager) recordViolationLocked(key string, target slo.Target, st slo.Status) {
	m.violations = append(m.violations, slo.Violation{
		ID:              uuid.New().String(),
		TargetKey:       key,
		Timestamp:       st.EvaluatedAt,
		Severity:        st.Status,
		CurrentValue:    st.CurrentValue,
		Threshold:       target.Target,
		ErrorBudgetUsed: st.ErrorBudgetUsed,
	})
	if len(m.violations) > maxViolations {
		m.violations = m.violations[len(m.violations)-maxViolations:]
	}
}

// GetSLOStatus returns a snapshot of current statuses, optionally
// filtered by service.
func (m *SLOManager) GetSLOStatus(service string) []slo.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]slo.Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		if service != "" && st.Service != service {
			continue
		}
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// GetSLOSummary returns the fleet-wide rollup.
func (m *SLOManager) GetSLOSummary() slo.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := slo.Summary{Total: len(m.statuses)}
	type ranked struct {
		status slo.Status
		usage  float64
	}
	var all []ranked

	var usedSum float64
	for key, st := range m.statuses {
		switch st.Status {
		case slo.StatusHealthy:
			summary.Healthy++
		case slo.StatusWarning:
			summary.Warning++
		case slo.StatusCritical:
			summary.Critical++
		}
		usedSum += st.ErrorBudgetUsed

		usage := 0.0
		if target, ok := m.targets[key]; ok && target.ErrorBudget > 0 {
			usage = st.ErrorBudgetUsed / target.ErrorBudget
		}
		all = append(all, ranked{status: *st, usage: usage})
	}
	if summary.Total > 0 {
		summary.AvgErrorBudgetUsed = usedSum / float64(summary.Total)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].usage > all[j].usage })
	for i := 0; i < len(all) && i < 5; i++ {
		summary.WorstPerforming = append(summary.WorstPerforming, all[i].status)
	}
	return summary
}

// GetViolations returns recorded violations, newest first, up to limit.
func (m *SLOManager) GetViolations(limit int) []slo.Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]slo.Violation, len(m.violations))
	copy(out, m.violations)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func triggerMetadata(target slo.Target, st slo.Status) map[string]string {
	md := map[string]string{
		"service": target.Service,
		"metric":  target.Metric,
		"status":  string(st.Status),
	}
	if st.TimeToExhaustion != nil {
		md["time_to_exhaustion_hours"] = fmt.Sprintf("%.1f", *st.TimeToExhaustion)
	}
	return md
}

func statusLevelValue(level slo.StatusLevel) float64 {
	switch level {
	case slo.StatusWarning:
		return 1
	case slo.StatusCritical:
		return 2
	default:
		return 0
	}
}
