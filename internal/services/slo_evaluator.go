package services

import (
	"math"
	"sort"
	"time"

	"github.com/burnwatch/burnwatch/internal/domain/slo"
)

// Classification thresholds, as fractions of the error budget.
const (
	criticalBudgetFraction = 0.9
	warningBudgetFraction  = 0.75
	warningExhaustionHours = 24.0
	fastBurnHours          = 6.0
)

// evaluate derives a target's status from its in-window samples and the
// previous snapshot. Pure function; the previous status may be nil on
// first evaluation.
func evaluate(target slo.Target, samples []slo.Sample, prev *slo.Status, now time.Time) slo.Status {
	value := aggregate(target.Kind, samples)
	used := budgetUsed(target, value)
	remaining := target.ErrorBudget - used

	status := slo.Status{
		Service:              target.Service,
		Metric:               target.Metric,
		CurrentValue:         value,
		ErrorBudgetUsed:      used,
		ErrorBudgetRemaining: remaining,
		SampleCount:          len(samples),
		EvaluatedAt:          now,
	}

	status.BurnRate = burnRate(prev, used, now)
	if status.BurnRate > 0 {
		tte := remaining / status.BurnRate * 24
		if tte < 0 {
			tte = 0
		}
		status.TimeToExhaustion = &tte
		status.FastBurn = tte < fastBurnHours
	}

	status.Status = classify(target, used, status.TimeToExhaustion)
	status.Trend = trend(target, prev, value)
	return status
}

// aggregate collapses the window into a single value per the target's
// kind. An empty window yields zero.
func aggregate(kind slo.MetricKind, samples []slo.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	switch kind {
	case slo.KindRatioGood, slo.KindRatioBad:
		matched := 0
		for _, s := range samples {
			if s.Value == 1 {
				matched++
			}
		}
		return float64(matched) / float64(len(samples)) * 100
	case slo.KindPercentile:
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		sort.Float64s(values)
		idx := int(math.Floor(float64(len(values)) * 0.95))
		if idx >= len(values) {
			idx = len(values) - 1
		}
		return values[idx]
	default:
		sum := 0.0
		for _, s := range samples {
			sum += s.Value
		}
		return sum / float64(len(samples))
	}
}

// budgetUsed converts the aggregate into consumed error budget. For
// bad-ratio metrics the aggregate itself is the consumption; for all
// others consumption is the shortfall against the target scaled to the
// budget.
func budgetUsed(target slo.Target, value float64) float64 {
	if target.Kind == slo.KindRatioBad {
		return math.Max(0, value)
	}
	if target.Target <= 0 {
		return 0
	}
	return math.Max(0, target.Target-value) / target.Target * target.ErrorBudget
}

// burnRate is the budget consumption delta per hour since the previous
// evaluation. Zero when there is no previous snapshot, no elapsed time,
// or the budget recovered.
func burnRate(prev *slo.Status, used float64, now time.Time) float64 {
	if prev == nil {
		return 0
	}
	hours := now.Sub(prev.EvaluatedAt).Hours()
	if hours <= 0 {
		return 0
	}
	delta := used - prev.ErrorBudgetUsed
	if delta <= 0 {
		return 0
	}
	return delta / hours
}

// classify picks the status level. Budget exhaustion dominates; the
// time-based warning only matters for otherwise healthy targets.
func classify(target slo.Target, used float64, tte *float64) slo.StatusLevel {
	if used >= criticalBudgetFraction*target.ErrorBudget {
		return slo.StatusCritical
	}
	if used >= warningBudgetFraction*target.ErrorBudget {
		return slo.StatusWarning
	}
	if tte != nil && *tte < warningExhaustionHours {
		return slo.StatusWarning
	}
	return slo.StatusHealthy
}

// trend compares the aggregate against the previous evaluation. Moves
// smaller than 1% of the target read as stable. For bad-ratio metrics a
// falling value is the improvement.
func trend(target slo.Target, prev *slo.Status, value float64) slo.Trend {
	if prev == nil {
		return slo.TrendStable
	}
	delta := value - prev.CurrentValue
	if math.Abs(delta) <= 0.01*target.Target {
		return slo.TrendStable
	}
	rising := delta > 0
	if target.Kind == slo.KindRatioBad {
		rising = !rising
	}
	if rising {
		return slo.TrendImproving
	}
	return slo.TrendDegrading
}
