package services

import (
	"context"
	"testing"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/testutil"
)

func testDispatcher(t *testing.T) (*AlertDispatcher, *testutil.MockNotifier, *time.Time) {
	t.Helper()

	notifier := testutil.NewMockNotifier()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	d := NewAlertDispatcher(notifier, nil, log)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d.nowFn = func() time.Time { return now }
	return d, notifier, &now
}

func waitForDeliveries(t *testing.T, notifier *testutil.MockNotifier, want int) []testutil.MockDelivery {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := notifier.Deliveries(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := notifier.Deliveries()
	if len(got) < want {
		t.Fatalf("deliveries = %d, want %d", len(got), want)
	}
	return got
}

func TestAlertDispatcher_AddRule(t *testing.T) {
	d, _, _ := testDispatcher(t)

	tests := []struct {
		name    string
		rule    alert.Rule
		wantErr bool
	}{
		{
			name: "valid rule",
			rule: alert.Rule{
				Name:      "budget warning",
				Metric:    alert.TypeBudgetThreshold,
				Condition: alert.ConditionGTE,
				Threshold: 75,
				Severity:  alert.SeverityWarning,
				Enabled:   true,
				Channels:  []string{alert.ChannelSlack},
			},
			wantErr: false,
		},
		{
			name: "missing name rejected",
			rule: alert.Rule{
				Metric:    alert.TypeBudgetThreshold,
				Condition: alert.ConditionGT,
				Severity:  alert.SeverityWarning,
			},
			wantErr: true,
		},
		{
			name: "unknown condition rejected",
			rule: alert.Rule{
				Name:      "bad condition",
				Metric:    alert.TypeBudgetThreshold,
				Condition: "between",
				Severity:  alert.SeverityWarning,
			},
			wantErr: true,
		},
		{
			name: "unknown channel rejected",
			rule: alert.Rule{
				Name:      "bad channel",
				Metric:    alert.TypeBudgetThreshold,
				Condition: alert.ConditionGT,
				Severity:  alert.SeverityWarning,
				Channels:  []string{"carrier-pigeon"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.AddRule(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Errorf("AddRule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && id == "" {
				t.Error("AddRule() returned empty id")
			}
		})
	}
}

func TestAlertDispatcher_TriggerDeliversToMatchingRule(t *testing.T) {
	d, notifier, _ := testDispatcher(t)

	_, err := d.AddRule(alert.Rule{
		Name:      "slo critical",
		Metric:    alert.TypeSLOViolation,
		Condition: alert.ConditionGT,
		Threshold: 50,
		Severity:  alert.SeverityCritical,
		Enabled:   true,
		Channels:  []string{alert.ChannelSlack, alert.ChannelPagerDuty},
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	id := d.Trigger(alert.Trigger{
		Type:     alert.TypeSLOViolation,
		Severity: alert.SeverityCritical,
		Message:  "api error budget exhausted",
		Value:    95,
	})
	if id == "" {
		t.Fatal("Trigger() returned empty id")
	}

	deliveries := waitForDeliveries(t, notifier, 2)
	channels := map[string]bool{}
	for _, del := range deliveries {
		channels[del.Channel] = true
	}
	if !channels[alert.ChannelSlack] || !channels[alert.ChannelPagerDuty] {
		t.Errorf("delivered channels = %v, want slack and pagerduty", channels)
	}

	active := d.GetActiveAlerts()
	if len(active) != 1 || !active[0].Delivered {
		t.Errorf("active = %+v, want one delivered alert", active)
	}
}

func TestAlertDispatcher_ConditionGatesDelivery(t *testing.T) {
	d, _, _ := testDispatcher(t)

	_, err := d.AddRule(alert.Rule{
		Name:      "high only",
		Metric:    alert.TypeBudgetThreshold,
		Condition: alert.ConditionGTE,
		Threshold: 90,
		Severity:  alert.SeverityWarning,
		Enabled:   true,
		Channels:  []string{alert.ChannelSlack},
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	d.Trigger(alert.Trigger{Type: alert.TypeBudgetThreshold, Severity: alert.SeverityWarning, Value: 80})

	history := d.GetAlertHistory(0)
	if len(history) != 1 {
		t.Fatalf("history = %d entries, want 1", len(history))
	}
	if history[0].Delivered {
		t.Error("alert below rule threshold was delivered")
	}
}

func TestAlertDispatcher_DisabledRuleNeverDelivers(t *testing.T) {
	d, notifier, _ := testDispatcher(t)

	_, err := d.AddRule(alert.Rule{
		Name:      "muted",
		Metric:    alert.TypeSLOWarning,
		Condition: alert.ConditionGT,
		Threshold: 0,
		Severity:  alert.SeverityWarning,
		Enabled:   false,
		Channels:  []string{alert.ChannelSlack},
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	d.Trigger(alert.Trigger{Type: alert.TypeSLOWarning, Severity: alert.SeverityWarning, Value: 5})

	time.Sleep(50 * time.Millisecond)
	if got := notifier.Deliveries(); len(got) != 0 {
		t.Errorf("deliveries = %d for disabled rule, want 0", len(got))
	}
	if got := d.GetAlertHistory(0); len(got) != 1 {
		t.Errorf("history = %d entries, want 1", len(got))
	}
}

func TestAlertDispatcher_CooldownSuppressesSecondDelivery(t *testing.T) {
	d, notifier, now := testDispatcher(t)

	_, err := d.AddRule(alert.Rule{
		Name:            "budget band",
		Metric:          alert.TypeBudgetThreshold,
		Condition:       alert.ConditionGTE,
		Threshold:       0,
		Severity:        alert.SeverityWarning,
		Enabled:         true,
		CooldownMinutes: 15,
		Channels:        []string{alert.ChannelSlack},
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	trigger := alert.Trigger{Type: alert.TypeBudgetThreshold, Severity: alert.SeverityWarning, Value: 80}
	d.Trigger(trigger)
	*now = now.Add(5 * time.Minute)
	d.Trigger(trigger)

	// Exactly one delivery but both firings are in history.
	time.Sleep(50 * time.Millisecond)
	if got := notifier.Deliveries(); len(got) != 1 {
		t.Errorf("deliveries = %d within cooldown, want 1", len(got))
	}
	if got := d.GetAlertHistory(0); len(got) != 2 {
		t.Errorf("history = %d entries, want 2", len(got))
	}

	// After the cooldown the rule re-arms.
	*now = now.Add(15 * time.Minute)
	d.Trigger(trigger)
	waitForDeliveries(t, notifier, 2)
}

func TestAlertDispatcher_ResolveIdempotence(t *testing.T) {
	d, _, _ := testDispatcher(t)

	id := d.Trigger(alert.Trigger{Type: alert.TypeSLOWarning, Severity: alert.SeverityWarning, Value: 1})

	if !d.Resolve(id, "fixed") {
		t.Fatal("Resolve() = false on first call")
	}
	if d.Resolve(id, "fixed again") {
		t.Error("Resolve() = true on second call")
	}
	if d.Resolve("no-such-id", "") {
		t.Error("Resolve() = true for unknown id")
	}

	if got := d.GetActiveAlerts(); len(got) != 0 {
		t.Errorf("active = %d after resolve, want 0", len(got))
	}
	history := d.GetAlertHistory(0)
	if len(history) != 1 || !history[0].Resolved || history[0].Resolution != "fixed" {
		t.Errorf("history entry = %+v, want resolved with note", history[0])
	}
}

func TestAlertDispatcher_RuleLifecycle(t *testing.T) {
	d, _, _ := testDispatcher(t)

	id, err := d.AddRule(alert.Rule{
		Name:      "tweakable",
		Metric:    alert.TypeSLOWarning,
		Condition: alert.ConditionGT,
		Threshold: 10,
		Severity:  alert.SeverityWarning,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}

	updated := alert.Rule{
		ID:        id,
		Name:      "tweakable",
		Metric:    alert.TypeSLOWarning,
		Condition: alert.ConditionGT,
		Threshold: 20,
		Severity:  alert.SeverityCritical,
		Enabled:   false,
	}
	ok, err := d.UpdateRule(updated)
	if err != nil || !ok {
		t.Fatalf("UpdateRule() = %v, %v", ok, err)
	}
	rules := d.GetRules()
	if len(rules) != 1 || rules[0].Threshold != 20 {
		t.Errorf("rules = %+v after update", rules)
	}

	unknown := updated
	unknown.ID = "missing"
	ok, err = d.UpdateRule(unknown)
	if err != nil || ok {
		t.Errorf("UpdateRule() on unknown id = %v, %v, want false", ok, err)
	}

	if !d.RemoveRule(id) {
		t.Error("RemoveRule() = false for known rule")
	}
	if d.RemoveRule(id) {
		t.Error("RemoveRule() = true for removed rule")
	}
}

func TestAlertDispatcher_LoadHistoryRestoresActiveAlerts(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	resolvedAt := created.Add(time.Hour)
	repo.Alerts["open"] = alert.Alert{ID: "open", Type: alert.TypeSLOViolation,
		Severity: alert.SeverityCritical, Message: "m", CreatedAt: created}
	repo.Alerts["closed"] = alert.Alert{ID: "closed", Type: alert.TypeSLOWarning,
		Severity: alert.SeverityWarning, Message: "m", CreatedAt: created,
		Resolved: true, ResolvedAt: &resolvedAt}

	log := logger.New(logger.Config{Level: "error", Format: "json"})
	d := NewAlertDispatcher(testutil.NewMockNotifier(), repo, log)
	if err := d.LoadHistory(context.Background()); err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}

	if got := d.GetAlertHistory(0); len(got) != 2 {
		t.Fatalf("history = %d entries after restore, want 2", len(got))
	}
	active := d.GetActiveAlerts()
	if len(active) != 1 || active[0].ID != "open" {
		t.Fatalf("active = %+v, want only the unresolved alert", active)
	}
	if !d.Resolve("open", "handled") {
		t.Error("Resolve() = false for a restored alert")
	}
}

func TestAlertDispatcher_PruneHistory(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	d := NewAlertDispatcher(testutil.NewMockNotifier(), repo, log)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d.nowFn = func() time.Time { return now }

	repo.Alerts["stale"] = alert.Alert{ID: "stale", CreatedAt: now.Add(-31 * 24 * time.Hour)}
	repo.Alerts["fresh"] = alert.Alert{ID: "fresh", CreatedAt: now.Add(-time.Hour)}

	d.PruneHistory()

	if _, ok := repo.Alerts["stale"]; ok {
		t.Error("alert past retention survived the prune")
	}
	if _, ok := repo.Alerts["fresh"]; !ok {
		t.Error("alert within retention was pruned")
	}
}

func TestAlertDispatcher_Stats(t *testing.T) {
	d, _, now := testDispatcher(t)

	// One stale alert outside the stats window.
	*now = now.Add(-48 * time.Hour)
	d.Trigger(alert.Trigger{Type: alert.TypeSLOWarning, Severity: alert.SeverityWarning, Value: 1})
	*now = now.Add(48 * time.Hour)

	d.Trigger(alert.Trigger{Type: alert.TypeSLOViolation, Severity: alert.SeverityCritical, Value: 1})
	d.Trigger(alert.Trigger{Type: alert.TypeBudgetThreshold, Severity: alert.SeverityWarning, Value: 80})

	stats := d.GetAlertStats(24 * time.Hour)
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.BySeverity[alert.SeverityCritical] != 1 {
		t.Errorf("BySeverity[critical] = %d, want 1", stats.BySeverity[alert.SeverityCritical])
	}
	if stats.ByType[alert.TypeBudgetThreshold] != 1 {
		t.Errorf("ByType[budget_threshold] = %d, want 1", stats.ByType[alert.TypeBudgetThreshold])
	}
	if stats.Unresolved != 2 {
		t.Errorf("Unresolved = %d, want 2", stats.Unresolved)
	}
}

func TestCondition_Match(t *testing.T) {
	tests := []struct {
		cond      alert.Condition
		value     float64
		threshold float64
		want      bool
	}{
		{alert.ConditionGT, 10, 5, true},
		{alert.ConditionGT, 5, 5, false},
		{alert.ConditionGTE, 5, 5, true},
		{alert.ConditionLT, 4, 5, true},
		{alert.ConditionLTE, 5, 5, true},
		{alert.ConditionEQ, 5, 5, true},
		{alert.ConditionEQ, 5.1, 5, false},
		{alert.Condition("between"), 5, 5, false},
	}

	for _, tt := range tests {
		if got := tt.cond.Match(tt.value, tt.threshold); got != tt.want {
			t.Errorf("%s.Match(%v, %v) = %v, want %v", tt.cond, tt.value, tt.threshold, got, tt.want)
		}
	}
}
