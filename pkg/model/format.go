package model

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// jp renders numbers with Japanese digit grouping (1,927 etc.).
var jp = message.NewPrinter(language.Japanese)

// FormatValue renders a metric value the way the dashboard displays it:
// percentages to one decimal for rates, whole percent for budget rate,
// counts as integers, currency rounded to the nearest yen with thousands
// separators.
func FormatValue(m Metric, v float64) string {
	switch m {
	case MetricCTR:
		return fmt.Sprintf("%.1f%%", math.Round(v*10)/10)
	case MetricBudgetRate:
		return fmt.Sprintf("%d%%", int64(math.Round(v)))
	case MetricConversions:
		return jp.Sprintf("%d件", int64(math.Round(v)))
	case MetricCPM, MetricCPA, MetricDailyBudget:
		return jp.Sprintf("%d円", int64(math.Round(v)))
	}
	return fmt.Sprintf("%g", v)
}

// FormatYen renders a currency amount rounded to the nearest yen with
// thousands separators.
func FormatYen(v float64) string {
	return jp.Sprintf("%d円", int64(math.Round(v)))
}

// FormatRate renders a percentage to one decimal place.
func FormatRate(v float64) string {
	return fmt.Sprintf("%.1f%%", math.Round(v*10)/10)
}
