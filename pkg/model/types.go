package model

import (
	"math"
	"time"
)

// Metric is an advertising KPI tracked by the alert engine.
type Metric string

const (
	MetricBudgetRate  Metric = "budget_rate"
	MetricDailyBudget Metric = "daily_budget"
	MetricCTR         Metric = "ctr"
	MetricCPM         Metric = "cpm"
	MetricCPA         Metric = "cpa"
	MetricConversions Metric = "conversions"
)

// AllMetrics returns every supported metric in evaluation order.
func AllMetrics() []Metric {
	return []Metric{
		MetricBudgetRate,
		MetricDailyBudget,
		MetricCTR,
		MetricCPM,
		MetricCPA,
		MetricConversions,
	}
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricBudgetRate, MetricDailyBudget, MetricCTR, MetricCPM, MetricCPA, MetricConversions:
		return true
	}
	return false
}

// Direction indicates whether higher or lower values of a metric are desirable.
type Direction string

const (
	HigherBetter Direction = "higher_better"
	LowerBetter  Direction = "lower_better"
)

// Direction returns the fixed desirability of the metric. The table is not
// user-configurable.
func (m Metric) Direction() Direction {
	switch m {
	case MetricBudgetRate, MetricCTR, MetricConversions:
		return HigherBetter
	case MetricCPM, MetricCPA, MetricDailyBudget:
		return LowerBetter
	}
	return LowerBetter
}

// DisplayName returns the dashboard label for the metric.
func (m Metric) DisplayName() string {
	switch m {
	case MetricBudgetRate:
		return "予算消化率"
	case MetricDailyBudget:
		return "日予算"
	case MetricCTR:
		return "CTR"
	case MetricCPM:
		return "CPM"
	case MetricCPA:
		return "CPA"
	case MetricConversions:
		return "CV"
	}
	return string(m)
}

// Priority returns the fixed ordering used when rendering alert summaries.
// Lower renders first within the same severity.
func (m Metric) Priority() int {
	switch m {
	case MetricConversions:
		return 0
	case MetricCTR:
		return 1
	case MetricCPM:
		return 2
	case MetricCPA:
		return 3
	case MetricBudgetRate:
		return 4
	case MetricDailyBudget:
		return 5
	}
	return 6
}

// DayStats holds one calendar day of account-level ad insights.
type DayStats struct {
	Date        time.Time `json:"date"`
	Spend       float64   `json:"spend"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	CTR         float64   `json:"ctr"`
	CPM         float64   `json:"cpm"`
	CPA         float64   `json:"cpa"`
	Conversions int64     `json:"conversions"`
	BudgetRate  float64   `json:"budget_rate"`
	Frequency   float64   `json:"frequency"`
}

// ValueFrom extracts the metric's value from a day of stats. ok is false for
// an unsupported metric; callers must treat that as a configuration error,
// not as a zero observation.
func (m Metric) ValueFrom(day DayStats) (value float64, ok bool) {
	switch m {
	case MetricBudgetRate:
		return day.BudgetRate, true
	case MetricDailyBudget:
		return day.Spend, true
	case MetricCTR:
		return day.CTR, true
	case MetricCPM:
		return day.CPM, true
	case MetricCPA:
		return day.CPA, true
	case MetricConversions:
		return float64(day.Conversions), true
	}
	return 0, false
}

// MetricSample is one observed daily value for a metric.
type MetricSample struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Samples extracts the metric's series from daily stats, preserving the
// ascending date order of the input. Days where the metric was not measured
// (NaN) are left out entirely, so short series fail the rule's day-count
// requirement instead of evaluating fabricated zeros.
func (m Metric) Samples(days []DayStats) []MetricSample {
	samples := make([]MetricSample, 0, len(days))
	for _, day := range days {
		v, ok := m.ValueFrom(day)
		if !ok || math.IsNaN(v) {
			continue
		}
		samples = append(samples, MetricSample{Date: day.Date, Value: v})
	}
	return samples
}

// TargetConfig is a user's configured goal value for one metric. Only
// positive numeric settings produce a TargetConfig; an unconfigured metric
// has none and is never evaluated against a default.
type TargetConfig struct {
	Metric      Metric    `json:"metric"`
	Direction   Direction `json:"direction"`
	TargetValue float64   `json:"target_value"`
}

// Severity indicates how far a metric has drifted from its goal.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for rendering; critical sorts first.
func (s Severity) Rank() int {
	if s == SeverityCritical {
		return 0
	}
	return 1
}

// AlertStatus is the lifecycle state of an alert instance.
type AlertStatus string

const (
	AlertActive   AlertStatus = "active"
	AlertResolved AlertStatus = "resolved"
)

// Alert is one recorded threshold violation for a (user, metric) pair.
// At most one active alert exists per pair at any time.
type Alert struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	Metric       Metric      `json:"metric"`
	TargetValue  float64     `json:"target_value"`
	CurrentValue float64     `json:"current_value"`
	Severity     Severity    `json:"severity"`
	Message      string      `json:"message"`
	CheckItems   []CheckItem `json:"check_items,omitempty"`
	Improvements []string    `json:"improvements,omitempty"`
	TriggeredAt  time.Time   `json:"triggered_at"`
	Status       AlertStatus `json:"status"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
}

// CheckItem is a remediation checklist entry attached to an alert.
type CheckItem struct {
	Priority    int    `json:"priority" yaml:"priority"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// EvaluationResult is the outcome of evaluating one metric's rule.
type EvaluationResult struct {
	Metric       Metric      `json:"metric"`
	Triggered    bool        `json:"triggered"`
	Severity     Severity    `json:"severity"`
	CurrentValue float64     `json:"current_value"`
	TargetValue  float64     `json:"target_value"`
	Message      string      `json:"message"`
	CheckItems   []CheckItem `json:"check_items,omitempty"`
	Improvements []string    `json:"improvements,omitempty"`
}

// NotificationType is the class of an outbound notification, used as part of
// the hourly deduplication key.
type NotificationType string

const (
	NotificationDaily  NotificationType = "daily"
	NotificationUpdate NotificationType = "update"
	NotificationAlert  NotificationType = "alert"
	NotificationToken  NotificationType = "token"
)

// GoalType selects the rule catalog for a user's campaign goal.
type GoalType string

const (
	GoalToCNewsletter GoalType = "toC_newsletter"
	GoalToCLine       GoalType = "toC_line"
	GoalToCPhone      GoalType = "toC_phone"
	GoalToCPurchase   GoalType = "toC_purchase"
	GoalToBNewsletter GoalType = "toB_newsletter"
	GoalToBLine       GoalType = "toB_line"
	GoalToBPhone      GoalType = "toB_phone"
	GoalToBPurchase   GoalType = "toB_purchase"
)

// DefaultGoal is used when a user has not selected a campaign goal.
const DefaultGoal = GoalToCNewsletter

// Valid reports whether g is a known goal type.
func (g GoalType) Valid() bool {
	switch g {
	case GoalToCNewsletter, GoalToCLine, GoalToCPhone, GoalToCPurchase,
		GoalToBNewsletter, GoalToBLine, GoalToBPhone, GoalToBPurchase:
		return true
	}
	return false
}

// UserSettings holds one tenant's connection and notification configuration.
type UserSettings struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Goal               GoalType  `json:"goal"`
	ChatworkToken      string    `json:"chatwork_token"`
	ChatworkRoomID     string    `json:"chatwork_room_id"`
	MetaAccessToken    string    `json:"meta_access_token"`
	MetaAccountID      string    `json:"meta_account_id"`
	DailyReportEnabled bool      `json:"daily_report_enabled"`
	UpdateEnabled      bool      `json:"update_notifications_enabled"`
	AlertEnabled       bool      `json:"alert_notifications_enabled"`
	MetaTokenUpdatedAt time.Time `json:"meta_token_updated_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
