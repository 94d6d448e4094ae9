package rules

import "github.com/komi-kou/meta-ads-dashboard/pkg/model"

// Family selects how a rule compares samples against its threshold.
type Family string

const (
	// FamilyDirectional compares the latest sample against the user's target
	// in the metric's fixed direction.
	FamilyDirectional Family = "directional"
	// FamilyConsecutive triggers only when every sample in the trailing
	// window satisfies the comparator against a fixed threshold.
	FamilyConsecutive Family = "consecutive"
	// FamilyBaselineBand triggers when every sample in the trailing window
	// falls outside [target-tolerance, target+tolerance].
	FamilyBaselineBand Family = "baseline_band"
	// FamilyPercentOfTarget triggers when every sample in the trailing
	// window exceeds target * percent / 100.
	FamilyPercentOfTarget Family = "percent_of_target"
)

// Comparator is the per-day condition for consecutive-run rules.
type Comparator string

const (
	CompareBelow Comparator = "below"
	CompareAbove Comparator = "above"
	CompareEqual Comparator = "equal"
)

// Rule is one declarative entry in the per-goal alert catalog.
type Rule struct {
	Metric     model.Metric
	Family     Family
	Days       int
	Comparator Comparator // consecutive rules only
	Threshold  float64    // fixed threshold for consecutive rules
	Tolerance  float64    // band width for baseline rules
	Percent    float64    // factor for percent-of-target rules
}

// NeedsTarget reports whether the rule requires a configured user target.
// Rules that need a target are skipped entirely when none is set; they never
// fall back to a built-in default.
func (r Rule) NeedsTarget() bool {
	switch r.Family {
	case FamilyDirectional, FamilyBaselineBand, FamilyPercentOfTarget:
		return true
	}
	return false
}

// standardRules is the catalog shared by every consumer-goal campaign.
func standardRules() []Rule {
	return []Rule{
		{Metric: model.MetricBudgetRate, Family: FamilyDirectional, Days: 1},
		{Metric: model.MetricCTR, Family: FamilyConsecutive, Days: 3, Comparator: CompareBelow, Threshold: 2.5},
		{Metric: model.MetricConversions, Family: FamilyConsecutive, Days: 2, Comparator: CompareEqual, Threshold: 0},
		{Metric: model.MetricCPM, Family: FamilyBaselineBand, Days: 3, Tolerance: 500},
		{Metric: model.MetricCPA, Family: FamilyPercentOfTarget, Days: 2, Percent: 120},
	}
}

// CatalogFor returns the rule catalog for a campaign goal. Unknown goals get
// the default catalog.
func CatalogFor(goal model.GoalType) []Rule {
	switch goal {
	case model.GoalToBNewsletter:
		// B2B newsletter campaigns run on thinner CTR and a hard daily
		// budget cap, and CPM alerts use the legacy fixed ceiling.
		return []Rule{
			{Metric: model.MetricBudgetRate, Family: FamilyDirectional, Days: 1},
			{Metric: model.MetricDailyBudget, Family: FamilyConsecutive, Days: 1, Comparator: CompareAbove, Threshold: 1000},
			{Metric: model.MetricCTR, Family: FamilyConsecutive, Days: 3, Comparator: CompareBelow, Threshold: 1.5},
			{Metric: model.MetricConversions, Family: FamilyConsecutive, Days: 3, Comparator: CompareEqual, Threshold: 0},
			{Metric: model.MetricCPM, Family: FamilyConsecutive, Days: 3, Comparator: CompareAbove, Threshold: 6000},
			{Metric: model.MetricCPA, Family: FamilyPercentOfTarget, Days: 2, Percent: 120},
		}
	case model.GoalToCNewsletter, model.GoalToCLine, model.GoalToCPhone, model.GoalToCPurchase,
		model.GoalToBLine, model.GoalToBPhone, model.GoalToBPurchase:
		return standardRules()
	}
	return standardRules()
}

// MaxDays returns the longest lookback window any rule in the catalog needs.
func MaxDays(catalog []Rule) int {
	max := 0
	for _, r := range catalog {
		if r.Days > max {
			max = r.Days
		}
	}
	return max
}
