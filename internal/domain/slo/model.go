package slo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MetricKind classifies how a target's samples are aggregated and how
// error-budget consumption is derived from the aggregate. The kind is
// resolved once when the target is registered, never re-parsed from the
// metric name on the evaluation path.
type MetricKind string

const (
	// KindRatioGood aggregates the fraction of samples equal to 1,
	// scaled to a percentage, where higher is better (availability,
	// success_rate).
	KindRatioGood MetricKind = "ratio_good"

	// KindRatioBad is the same aggregate read as "badness" (error_rate,
	// failure counts expressed as a ratio). The value itself is the
	// budget consumption.
	KindRatioBad MetricKind = "ratio_bad"

	// KindPercentile aggregates the 95th percentile of sample values
	// (latency_p95).
	KindPercentile MetricKind = "percentile"

	// KindAverage aggregates the arithmetic mean (relevance_score and
	// any metric without a more specific kind).
	KindAverage MetricKind = "average"
)

// ResolveKind maps a metric name to its aggregation kind. Used at
// registration time only.
func ResolveKind(metric string) MetricKind {
	switch metric {
	case "availability", "success_rate":
		return KindRatioGood
	case "latency_p95":
		return KindPercentile
	case "error_rate":
		return KindRatioBad
	}
	if strings.Contains(metric, "error") || strings.Contains(metric, "failure") {
		return KindRatioBad
	}
	return KindAverage
}

// Target is the immutable configuration of one SLO. Identity is
// (Service, Metric); removal deletes the target's window and status.
type Target struct {
	Service        string     `json:"service" yaml:"service" validate:"required"`
	Metric         string     `json:"metric" yaml:"metric" validate:"required"`
	Kind           MetricKind `json:"kind" yaml:"-"`
	Target         float64    `json:"target" yaml:"target" validate:"gt=0"`
	Window         string     `json:"window" yaml:"window" validate:"required"`
	ErrorBudget    float64    `json:"error_budget" yaml:"error_budget" validate:"gt=0"`
	AlertThreshold float64    `json:"alert_threshold" yaml:"alert_threshold" validate:"gte=0"`
}

// Key returns the identity key of the target.
func (t Target) Key() string {
	return t.Service + "/" + t.Metric
}

// WindowDuration parses the target's window string ("30m", "24h", "7d").
func (t Target) WindowDuration() (time.Duration, error) {
	return ParseWindow(t.Window)
}

// ParseWindow parses a window duration string. It accepts everything
// time.ParseDuration does plus a "d" suffix for whole days.
func ParseWindow(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("window is empty")
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return d, nil
}

// Sample is one timestamped metric observation. Samples are owned by
// the window of their target and pruned once older than twice the
// target's window.
type Sample struct {
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// StatusLevel is the classified health of a target.
type StatusLevel string

const (
	StatusHealthy  StatusLevel = "healthy"
	StatusWarning  StatusLevel = "warning"
	StatusCritical StatusLevel = "critical"
)

// Trend describes the direction the SLO value is moving between
// evaluations.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// Status is the derived state of a target, recomputed on every write
// and on every periodic tick.
//
// Invariant: ErrorBudgetUsed + ErrorBudgetRemaining == the target's
// ErrorBudget. Remaining is allowed to go negative; a negative value
// always classifies as critical.
type Status struct {
	Service              string      `json:"service"`
	Metric               string      `json:"metric"`
	CurrentValue         float64     `json:"current_value"`
	ErrorBudgetUsed      float64     `json:"error_budget_used"`
	ErrorBudgetRemaining float64     `json:"error_budget_remaining"`
	Status               StatusLevel `json:"status"`
	Trend                Trend       `json:"trend"`
	BurnRate             float64     `json:"burn_rate"`
	TimeToExhaustion     *float64    `json:"time_to_exhaustion_hours,omitempty"`
	FastBurn             bool        `json:"fast_burn"`
	SampleCount          int         `json:"sample_count"`
	EvaluatedAt          time.Time   `json:"evaluated_at"`
}

// Violation is an immutable record created when a target crosses into
// warning or critical.
type Violation struct {
	ID              string      `json:"id"`
	TargetKey       string      `json:"target_key"`
	Timestamp       time.Time   `json:"timestamp"`
	Severity        StatusLevel `json:"severity"`
	CurrentValue    float64     `json:"current_value"`
	Threshold       float64     `json:"threshold"`
	ErrorBudgetUsed float64     `json:"error_budget_used"`
	Resolved        bool        `json:"resolved"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// Summary is the fleet-wide rollup returned by GetSLOSummary.
type Summary struct {
	Total              int      `json:"total"`
	Healthy            int      `json:"healthy"`
	Warning            int      `json:"warning"`
	Critical           int      `json:"critical"`
	AvgErrorBudgetUsed float64  `json:"avg_error_budget_used"`
	WorstPerforming    []Status `json:"worst_performing"`
}
