package budget

import "time"

// TotalService is the synthetic service name under which spending
// across all services is aggregated.
const TotalService = "total"

// HighCostSentinel is the fixed per-event cost above which a
// high_cost_operation alert fires immediately, independent of any
// configured budget threshold.
const HighCostSentinel = 10.0

// Config is the per-service budget configuration. One row per tracked
// service plus the synthetic "total" aggregate.
type Config struct {
	Service         string    `json:"service" yaml:"service" validate:"required"`
	DailyLimit      float64   `json:"daily_limit" yaml:"daily_limit" validate:"gt=0"`
	MonthlyLimit    float64   `json:"monthly_limit" yaml:"monthly_limit" validate:"gt=0"`
	Currency        string    `json:"currency" yaml:"currency"`
	AlertThresholds []float64 `json:"alert_thresholds" yaml:"alert_thresholds" validate:"dive,gt=0,lte=1"`
}

// Event is one cost observation in the append-only log.
type Event struct {
	ID        string            `json:"id"`
	Service   string            `json:"service"`
	Operation string            `json:"operation"`
	Cost      float64           `json:"cost"`
	Currency  string            `json:"currency"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PeriodSpend is the spend within one budget period and its share of
// the configured limit.
type PeriodSpend struct {
	Cost       float64 `json:"cost"`
	Percentage float64 `json:"percentage"`
}

// Summary is the derived spending state of one service, recomputed on
// every insert and on the periodic tick.
type Summary struct {
	Service     string      `json:"service"`
	Daily       PeriodSpend `json:"daily"`
	Monthly     PeriodSpend `json:"monthly"`
	Currency    string      `json:"currency"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Projection extrapolates current spend into the future.
type Projection struct {
	Service              string     `json:"service"`
	DailyProjection      float64    `json:"daily_projection"`
	MonthlyProjection    float64    `json:"monthly_projection"`
	BudgetExhaustionDate *time.Time `json:"budget_exhaustion_date,omitempty"`
}

// Breakdown aggregates spend over an arbitrary trailing window.
type Breakdown struct {
	ByService   map[string]float64 `json:"by_service"`
	ByOperation map[string]float64 `json:"by_operation"`
	Total       float64            `json:"total"`
	Trend       string             `json:"trend"`
}
