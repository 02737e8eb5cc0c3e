package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SLO metrics
	sloEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Subsystem: "slo",
			Name:      "evaluations_total",
			Help:      "Total number of SLO evaluations",
		},
		[]string{"service", "metric"},
	)

	sloStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "slo",
			Name:      "status",
			Help:      "SLO status (0 healthy, 1 warning, 2 critical)",
		},
		[]string{"service", "metric"},
	)

	sloErrorBudgetUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "slo",
			Name:      "error_budget_used",
			Help:      "Error budget consumed, in target units",
		},
		[]string{"service", "metric"},
	)

	sloBurnRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "slo",
			Name:      "burn_rate",
			Help:      "Error budget burn rate per hour",
		},
		[]string{"service", "metric"},
	)

	// Budget metrics
	budgetDailySpend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "budget",
			Name:      "daily_spend",
			Help:      "Spend since start of day",
		},
		[]string{"service"},
	)

	budgetMonthlySpend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "budget",
			Name:      "monthly_spend",
			Help:      "Spend since start of month",
		},
		[]string{"service"},
	)

	costEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Subsystem: "budget",
			Name:      "cost_events_total",
			Help:      "Total number of recorded cost events",
		},
		[]string{"service"},
	)

	// Alert metrics
	alertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Subsystem: "alert",
			Name:      "fired_total",
			Help:      "Total number of alerts fired",
		},
		[]string{"type", "severity"},
	)

	alertsSuppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Subsystem: "alert",
			Name:      "suppressed_total",
			Help:      "Total number of deliveries suppressed by cooldown",
		},
	)

	activeAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Subsystem: "alert",
			Name:      "active_count",
			Help:      "Number of unresolved alerts",
		},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Total number of notification deliveries",
		},
		[]string{"channel", "status"},
	)
)

// RecordEvaluation records one SLO evaluation and its outcome.
func RecordEvaluation(service, metric string, status float64, budgetUsed, burnRate float64) {
	sloEvaluationsTotal.WithLabelValues(service, metric).Inc()
	sloStatus.WithLabelValues(service, metric).Set(status)
	sloErrorBudgetUsed.WithLabelValues(service, metric).Set(budgetUsed)
	sloBurnRate.WithLabelValues(service, metric).Set(burnRate)
}

// RecordCostEvent records one cost event insert.
func RecordCostEvent(service string) {
	costEventsTotal.WithLabelValues(service).Inc()
}

// SetBudgetSpend sets the period spend gauges for a service.
func SetBudgetSpend(service string, daily, monthly float64) {
	budgetDailySpend.WithLabelValues(service).Set(daily)
	budgetMonthlySpend.WithLabelValues(service).Set(monthly)
}

// RecordAlertFired records one alert firing.
func RecordAlertFired(alertType, severity string) {
	alertsFiredTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordAlertSuppressed records one cooldown suppression.
func RecordAlertSuppressed() {
	alertsSuppressedTotal.Inc()
}

// SetActiveAlerts sets the unresolved alert gauge.
func SetActiveAlerts(count float64) {
	activeAlerts.Set(count)
}

// RecordNotification records one delivery attempt by channel and outcome.
func RecordNotification(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
