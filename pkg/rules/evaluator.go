package rules

import (
	"fmt"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

// Severity escalation factors for target-bound rules: a higher-better metric
// below 70% of target, or a lower-better metric above 130%, is critical.
const (
	criticalLowFactor  = 0.70
	criticalHighFactor = 1.30
)

// Evaluator is a pure decision function over a metric's trailing samples.
type Evaluator struct {
	checklist *ChecklistCatalog
}

// NewEvaluator creates an evaluator backed by the given checklist catalog.
// A nil catalog disables check-item lookup.
func NewEvaluator(checklist *ChecklistCatalog) *Evaluator {
	if checklist == nil {
		checklist = &ChecklistCatalog{}
	}
	return &Evaluator{checklist: checklist}
}

// Evaluate applies one rule to the metric's sample window. A nil or
// non-positive target skips target-bound rules, and a window shorter than
// the rule's day count is "not enough data yet". Both return
// Triggered=false, never an error.
func (e *Evaluator) Evaluate(rule Rule, target *model.TargetConfig, samples []model.MetricSample) model.EvaluationResult {
	result := model.EvaluationResult{Metric: rule.Metric}

	if rule.NeedsTarget() {
		if target == nil || target.TargetValue <= 0 {
			return result
		}
		result.TargetValue = target.TargetValue
	}
	if len(samples) < rule.Days || rule.Days <= 0 {
		return result
	}

	window := samples[len(samples)-rule.Days:]
	latest := window[len(window)-1].Value
	result.CurrentValue = latest

	switch rule.Family {
	case FamilyDirectional:
		e.evaluateDirectional(rule, target.TargetValue, latest, &result)
	case FamilyConsecutive:
		e.evaluateConsecutive(rule, window, latest, &result)
	case FamilyBaselineBand:
		e.evaluateBaselineBand(rule, target.TargetValue, window, latest, &result)
	case FamilyPercentOfTarget:
		e.evaluatePercentOfTarget(rule, target.TargetValue, window, latest, &result)
	}

	if result.Triggered {
		name := rule.Metric.DisplayName()
		result.CheckItems = e.checklist.CheckItems(name)
		result.Improvements = e.checklist.Improvements(name)
	}
	return result
}

func (e *Evaluator) evaluateDirectional(rule Rule, target, latest float64, result *model.EvaluationResult) {
	metric := rule.Metric
	switch metric.Direction() {
	case model.HigherBetter:
		if latest >= target {
			return
		}
		result.Triggered = true
		result.Message = fmt.Sprintf("%sが目標%sを下回る%sになっています",
			metric.DisplayName(), model.FormatValue(metric, target), model.FormatValue(metric, latest))
	case model.LowerBetter:
		if latest <= target {
			return
		}
		result.Triggered = true
		result.Message = fmt.Sprintf("%sが目標%sを上回る%sになっています",
			metric.DisplayName(), model.FormatValue(metric, target), model.FormatValue(metric, latest))
	}
	result.Severity = escalate(metric.Direction(), latest, target)
}

func (e *Evaluator) evaluateConsecutive(rule Rule, window []model.MetricSample, latest float64, result *model.EvaluationResult) {
	for _, s := range window {
		switch rule.Comparator {
		case CompareBelow:
			if s.Value >= rule.Threshold {
				return
			}
		case CompareAbove:
			if s.Value <= rule.Threshold {
				return
			}
		case CompareEqual:
			if s.Value != rule.Threshold {
				return
			}
		default:
			return
		}
	}

	metric := rule.Metric
	result.Triggered = true
	result.TargetValue = rule.Threshold
	switch rule.Comparator {
	case CompareBelow:
		result.Severity = model.SeverityCritical
		result.Message = fmt.Sprintf("%sが%s以下の%sが%d日間続いています",
			metric.DisplayName(), model.FormatValue(metric, rule.Threshold), model.FormatValue(metric, latest), rule.Days)
	case CompareEqual:
		result.Severity = model.SeverityCritical
		result.Message = fmt.Sprintf("%sが%d日連続で%sです",
			metric.DisplayName(), rule.Days, model.FormatValue(metric, latest))
	case CompareAbove:
		result.Severity = model.SeverityWarning
		result.Message = fmt.Sprintf("%sが%s以上の%sが%d日間続いています",
			metric.DisplayName(), model.FormatValue(metric, rule.Threshold), model.FormatValue(metric, latest), rule.Days)
	}
}

func (e *Evaluator) evaluateBaselineBand(rule Rule, target float64, window []model.MetricSample, latest float64, result *model.EvaluationResult) {
	lower := target - rule.Tolerance
	upper := target + rule.Tolerance
	for _, s := range window {
		if s.Value >= lower && s.Value <= upper {
			return
		}
	}

	metric := rule.Metric
	result.Triggered = true
	result.Severity = model.SeverityWarning
	result.Message = fmt.Sprintf("%sが目標範囲（%s～%s）を超えた%sが%d日間続いています",
		metric.DisplayName(), model.FormatValue(metric, lower), model.FormatValue(metric, upper),
		model.FormatValue(metric, latest), rule.Days)
}

func (e *Evaluator) evaluatePercentOfTarget(rule Rule, target float64, window []model.MetricSample, latest float64, result *model.EvaluationResult) {
	threshold := target * (rule.Percent / 100)
	for _, s := range window {
		if s.Value <= threshold {
			return
		}
	}

	metric := rule.Metric
	result.Triggered = true
	result.Severity = escalate(metric.Direction(), latest, target)
	result.Message = fmt.Sprintf("%sが目標の%.0f%%（%s）を超えた%sが%d日間続いています",
		metric.DisplayName(), rule.Percent, model.FormatValue(metric, threshold),
		model.FormatValue(metric, latest), rule.Days)
}

// escalate grades a triggered rule by how far the latest value sits from the
// target: beyond the 70%/130% bands it is critical, otherwise a warning.
func escalate(direction model.Direction, latest, target float64) model.Severity {
	switch direction {
	case model.HigherBetter:
		if latest < target*criticalLowFactor {
			return model.SeverityCritical
		}
	case model.LowerBetter:
		if latest > target*criticalHighFactor {
			return model.SeverityCritical
		}
	}
	return model.SeverityWarning
}
