package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
	"github.com/burnwatch/burnwatch/internal/testutil"
)

func testCostTracker(t *testing.T) (*CostTracker, *testutil.MockDispatcher, *time.Time) {
	t.Helper()

	dispatcher := testutil.NewMockDispatcher()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	c := NewCostTracker(dispatcher, nil, log)

	// Mid-month so daily and monthly windows are well separated.
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }
	return c, dispatcher, &now
}

func thresholdTriggersFor(dispatcher *testutil.MockDispatcher, service string) []alert.Trigger {
	var out []alert.Trigger
	for _, tr := range dispatcher.TriggersOfType(alert.TypeBudgetThreshold) {
		if tr.Metadata["service"] == service {
			out = append(out, tr)
		}
	}
	return out
}

func TestCostTracker_SetBudget(t *testing.T) {
	c, _, _ := testCostTracker(t)

	tests := []struct {
		name    string
		cfg     budget.Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500},
			wantErr: false,
		},
		{
			name:    "missing service rejected",
			cfg:     budget.Config{DailyLimit: 50, MonthlyLimit: 1500},
			wantErr: true,
		},
		{
			name:    "zero daily limit rejected",
			cfg:     budget.Config{Service: "api", MonthlyLimit: 1500},
			wantErr: true,
		},
		{
			name:    "threshold above one rejected",
			cfg:     budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500, AlertThresholds: []float64{1.5}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SetBudget(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetBudget() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCostTracker_SetBudgetAppliesDefaults(t *testing.T) {
	c, _, _ := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}

	c.mu.Lock()
	cfg := c.configs["api"]
	c.mu.Unlock()

	if cfg.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", cfg.Currency)
	}
	if len(cfg.AlertThresholds) != len(defaultAlertThresholds) {
		t.Errorf("AlertThresholds = %v, want defaults", cfg.AlertThresholds)
	}
}

func TestCostTracker_DailyThresholdBandFiresOnce(t *testing.T) {
	c, dispatcher, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 5000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}

	// $38 lands at 76% of the daily limit, inside the 75 band; the
	// following $2 stays past the band without re-firing.
	c.RecordCost("api", "inference", 38, "USD", *now, nil)
	c.RecordCost("api", "inference", 2, "USD", *now, nil)

	triggers := thresholdTriggersFor(dispatcher, "api")
	if len(triggers) != 1 {
		t.Fatalf("budget_threshold triggers for api = %d, want 1", len(triggers))
	}
	if triggers[0].Severity != alert.SeverityWarning {
		t.Errorf("severity = %s, want warning", triggers[0].Severity)
	}
	if triggers[0].Metadata["threshold"] != "75" {
		t.Errorf("threshold = %s, want 75", triggers[0].Metadata["threshold"])
	}
	if triggers[0].Metadata["period"] != "daily" {
		t.Errorf("period = %s, want daily", triggers[0].Metadata["period"])
	}

	summary, ok := c.GetCostSummary("api")
	if !ok {
		t.Fatal("GetCostSummary() missing for configured service")
	}
	if math.Abs(summary.Daily.Percentage-80) > 1e-9 {
		t.Errorf("Daily.Percentage = %v, want 80", summary.Daily.Percentage)
	}
}

func TestCostTracker_ThresholdBandRearmsAfterRollover(t *testing.T) {
	c, dispatcher, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 5000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}

	c.RecordCost("api", "inference", 38, "USD", *now, nil)

	// A new day drops the percentage below the band floor, which clears
	// the bookkeeping; climbing back into the band fires again.
	*now = now.Add(24 * time.Hour)
	c.RecordCost("api", "inference", 1, "USD", *now, nil)
	c.RecordCost("api", "inference", 37, "USD", *now, nil)

	triggers := thresholdTriggersFor(dispatcher, "api")
	count := 0
	for _, tr := range triggers {
		if tr.Metadata["threshold"] == "75" && tr.Metadata["period"] == "daily" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("daily 75 band fired %d times across two days, want 2", count)
	}
}

func TestCostTracker_OverBudgetIsCritical(t *testing.T) {
	c, dispatcher, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 5000, AlertThresholds: []float64{1.0}}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}

	// 102% of the daily limit sits inside the 100 band.
	c.RecordCost("api", "inference", 51, "USD", *now, nil)

	triggers := thresholdTriggersFor(dispatcher, "api")
	if len(triggers) != 1 {
		t.Fatalf("budget_threshold triggers = %d, want 1", len(triggers))
	}
	if triggers[0].Severity != alert.SeverityCritical {
		t.Errorf("severity over budget = %s, want critical", triggers[0].Severity)
	}
}

func TestCostTracker_HighCostOperation(t *testing.T) {
	c, dispatcher, now := testCostTracker(t)

	// Fires even with no budget configured for the service.
	c.RecordCost("batch", "reindex", 15, "USD", *now, nil)
	c.RecordCost("batch", "reindex", budget.HighCostSentinel, "USD", *now, nil)

	triggers := dispatcher.TriggersOfType(alert.TypeHighCostOperation)
	if len(triggers) != 1 {
		t.Fatalf("high_cost_operation triggers = %d, want 1", len(triggers))
	}
	if triggers[0].Value != 15 {
		t.Errorf("Value = %v, want 15", triggers[0].Value)
	}
	if triggers[0].Metadata["operation"] != "reindex" {
		t.Errorf("operation = %s, want reindex", triggers[0].Metadata["operation"])
	}
}

func TestCostTracker_TotalAggregate(t *testing.T) {
	c, _, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	if err := c.SetBudget(budget.Config{Service: "worker", DailyLimit: 30, MonthlyLimit: 500}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}

	c.RecordCost("api", "query", 8, "USD", *now, nil)
	c.RecordCost("worker", "job", 4, "USD", *now, nil)
	// Yesterday counts toward the month but not the day.
	c.RecordCost("api", "query", 5, "USD", now.Add(-24*time.Hour), nil)

	total, ok := c.GetCostSummary(budget.TotalService)
	if !ok {
		t.Fatal("GetCostSummary(total) missing")
	}
	if math.Abs(total.Daily.Cost-12) > 1e-9 {
		t.Errorf("total daily = %v, want 12", total.Daily.Cost)
	}
	if math.Abs(total.Monthly.Cost-17) > 1e-9 {
		t.Errorf("total monthly = %v, want 17", total.Monthly.Cost)
	}
	// Total percentage runs against the summed limits.
	if math.Abs(total.Daily.Percentage-15) > 1e-9 {
		t.Errorf("total daily percentage = %v, want 15", total.Daily.Percentage)
	}

	summaries := c.GetCostSummaries()
	if len(summaries) != 3 {
		t.Fatalf("summaries = %d, want 3", len(summaries))
	}
	if summaries[0].Service != "api" || summaries[1].Service != budget.TotalService || summaries[2].Service != "worker" {
		t.Errorf("summaries not sorted by service: %s, %s, %s",
			summaries[0].Service, summaries[1].Service, summaries[2].Service)
	}
}

func TestCostTracker_Breakdown(t *testing.T) {
	c, _, now := testCostTracker(t)

	c.RecordCost("api", "query", 10, "USD", now.Add(-90*time.Minute), nil)
	c.RecordCost("api", "index", 30, "USD", now.Add(-30*time.Minute), nil)
	// Outside the window, ignored.
	c.RecordCost("api", "query", 99, "USD", now.Add(-3*time.Hour), nil)

	b := c.GetCostBreakdown(2 * time.Hour)
	if math.Abs(b.Total-40) > 1e-9 {
		t.Errorf("Total = %v, want 40", b.Total)
	}
	if math.Abs(b.ByService["api"]-40) > 1e-9 {
		t.Errorf("ByService[api] = %v, want 40", b.ByService["api"])
	}
	if math.Abs(b.ByOperation["index"]-30) > 1e-9 {
		t.Errorf("ByOperation[index] = %v, want 30", b.ByOperation["index"])
	}
	if b.Trend != "up" {
		t.Errorf("Trend = %q, want up", b.Trend)
	}
}

func TestCostTracker_Projection(t *testing.T) {
	c, _, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 100, MonthlyLimit: 1000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	c.RecordCost("api", "query", 50, "USD", now.Add(-time.Hour), nil)

	p, ok := c.GetCostProjection("api")
	if !ok {
		t.Fatal("GetCostProjection() missing for configured service")
	}
	if math.Abs(p.DailyProjection-50) > 1e-9 {
		t.Errorf("DailyProjection = %v, want 50", p.DailyProjection)
	}
	// August 15th leaves 16 days: 50 spent + 50/day projected forward.
	if math.Abs(p.MonthlyProjection-850) > 1e-9 {
		t.Errorf("MonthlyProjection = %v, want 850", p.MonthlyProjection)
	}
	if p.BudgetExhaustionDate == nil {
		t.Fatal("BudgetExhaustionDate = nil, want 19 days out")
	}
	want := now.Add(19 * 24 * time.Hour)
	if diff := p.BudgetExhaustionDate.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("BudgetExhaustionDate = %v, want ~%v", p.BudgetExhaustionDate, want)
	}

	if _, ok := c.GetCostProjection("ghost"); ok {
		t.Error("GetCostProjection() = true for unknown service")
	}
}

func TestCostTracker_RemoveBudget(t *testing.T) {
	c, _, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	c.RecordCost("api", "query", 38, "USD", *now, nil)

	if !c.RemoveBudget("api") {
		t.Fatal("RemoveBudget() = false for configured service")
	}
	if c.RemoveBudget("api") {
		t.Error("RemoveBudget() = true for already removed service")
	}
	if _, ok := c.GetCostSummary("api"); ok {
		t.Error("summary survived budget removal")
	}

	c.mu.Lock()
	bands := len(c.thresholdFired)
	c.mu.Unlock()
	if bands != 0 {
		t.Errorf("threshold bookkeeping = %d entries after removal, want 0", bands)
	}
}

func TestCostTracker_RemoveBudgetClearsTotalBands(t *testing.T) {
	c, dispatcher, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 5000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	// 76% of the summed daily limits marks the total 75 band as fired.
	c.RecordCost("api", "inference", 38, "USD", *now, nil)

	if !c.RemoveBudget("api") {
		t.Fatal("RemoveBudget() = false for configured service")
	}
	c.mu.Lock()
	bands := len(c.thresholdFired)
	c.mu.Unlock()
	if bands != 0 {
		t.Fatalf("threshold bookkeeping = %d entries after removing the last budget, want 0", bands)
	}

	// With the budget back, climbing into the band again must re-fire
	// instead of being suppressed by a stale total entry.
	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 5000}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	c.RecordCost("api", "inference", 0.5, "USD", *now, nil)

	count := 0
	for _, tr := range thresholdTriggersFor(dispatcher, budget.TotalService) {
		if tr.Metadata["threshold"] == "75" && tr.Metadata["period"] == "daily" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("total daily 75 band fired %d times across the removal, want 2", count)
	}
}

func TestCostTracker_LoadEventsRebuildsSummaries(t *testing.T) {
	repo := testutil.NewMockCostRepository()
	dispatcher := testutil.NewMockDispatcher()
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	c := NewCostTracker(dispatcher, repo, log)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	c.nowFn = func() time.Time { return now }

	repo.Events = []budget.Event{
		{ID: "e-1", Service: "api", Operation: "query", Cost: 12, Currency: "USD", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "e-2", Service: "api", Operation: "query", Cost: 6, Currency: "USD", Timestamp: now.Add(-5 * 24 * time.Hour)},
	}

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	if err := c.LoadEvents(context.Background()); err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}

	summary, ok := c.GetCostSummary("api")
	if !ok {
		t.Fatal("GetCostSummary() missing after restore")
	}
	if math.Abs(summary.Daily.Cost-12) > 1e-9 {
		t.Errorf("Daily.Cost = %v after restore, want 12", summary.Daily.Cost)
	}
	if math.Abs(summary.Monthly.Cost-18) > 1e-9 {
		t.Errorf("Monthly.Cost = %v after restore, want 18", summary.Monthly.Cost)
	}
}

func TestCostTracker_RefreshAll(t *testing.T) {
	c, _, now := testCostTracker(t)

	if err := c.SetBudget(budget.Config{Service: "api", DailyLimit: 50, MonthlyLimit: 1500}); err != nil {
		t.Fatalf("SetBudget() error = %v", err)
	}
	c.RecordCost("api", "query", 38, "USD", *now, nil)
	c.RecordCost("api", "query", 5, "USD", now.Add(-70*24*time.Hour), nil)

	// Next day: the tick must reset daily spend without new events and
	// prune events past retention.
	*now = now.Add(25 * time.Hour)
	c.RefreshAll()

	summary, ok := c.GetCostSummary("api")
	if !ok {
		t.Fatal("GetCostSummary() missing after refresh")
	}
	if summary.Daily.Cost != 0 {
		t.Errorf("Daily.Cost = %v after rollover, want 0", summary.Daily.Cost)
	}
	if math.Abs(summary.Monthly.Cost-38) > 1e-9 {
		t.Errorf("Monthly.Cost = %v, want 38", summary.Monthly.Cost)
	}

	c.mu.Lock()
	events := len(c.events)
	c.mu.Unlock()
	if events != 1 {
		t.Errorf("events = %d after retention prune, want 1", events)
	}
}
