package alert

import "time"

// Alert types raised by the engine.
const (
	TypeSLOViolation      = "slo_violation"
	TypeSLOWarning        = "slo_warning"
	TypeSLOFastBurn       = "slo_fast_burn"
	TypeBudgetThreshold   = "budget_threshold"
	TypeHighCostOperation = "high_cost_operation"
)

// Alert severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification channel identifiers a rule can fan out to.
const (
	ChannelSlack     = "slack"
	ChannelEmail     = "email"
	ChannelPagerDuty = "pagerduty"
	ChannelWebhook   = "webhook"
)

// Condition is the comparison a rule applies to the trigger value.
type Condition string

const (
	ConditionGT  Condition = "gt"
	ConditionLT  Condition = "lt"
	ConditionEQ  Condition = "eq"
	ConditionGTE Condition = "gte"
	ConditionLTE Condition = "lte"
)

// Match applies the condition to a trigger value. Unknown conditions
// never match.
func (c Condition) Match(value, threshold float64) bool {
	switch c {
	case ConditionGT:
		return value > threshold
	case ConditionLT:
		return value < threshold
	case ConditionGTE:
		return value >= threshold
	case ConditionLTE:
		return value <= threshold
	case ConditionEQ:
		return value == threshold
	default:
		return false
	}
}

// Rule is a user-mutable alert rule. Identity is ID; rules are matched
// to triggers by Metric against the trigger type.
type Rule struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name" validate:"required"`
	Metric          string    `json:"metric" yaml:"metric" validate:"required"`
	Condition       Condition `json:"condition" yaml:"condition" validate:"required,oneof=gt lt eq gte lte"`
	Threshold       float64   `json:"threshold" yaml:"threshold"`
	Severity        string    `json:"severity" yaml:"severity" validate:"required,oneof=info warning critical"`
	Enabled         bool      `json:"enabled" yaml:"enabled"`
	CooldownMinutes int       `json:"cooldown_minutes" yaml:"cooldown_minutes" validate:"gte=0"`
	Channels        []string  `json:"channels" yaml:"channels" validate:"dive,oneof=slack email pagerduty webhook"`
	Description     string    `json:"description" yaml:"description"`
}

// Cooldown returns the rule's cooldown as a duration.
func (r Rule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Trigger is the input to the dispatcher. Every cross-component
// notification in the engine goes through one of these.
type Trigger struct {
	Type     string            `json:"type"`
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Value    float64           `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Alert is one firing episode. Every trigger is recorded in history
// even when delivery is suppressed by a rule cooldown.
type Alert struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Severity   string            `json:"severity"`
	Message    string            `json:"message"`
	Value      float64           `json:"value"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Delivered  bool              `json:"delivered"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Resolution string            `json:"resolution,omitempty"`
}

// Stats aggregates alert history over a trailing window.
type Stats struct {
	Total      int            `json:"total"`
	Unresolved int            `json:"unresolved"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}
