package metaads

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// conversionActionTypes are the Graph API action buckets counted as
// conversions. Which bucket fires depends on how the account tracks its
// goal; summing this fixed set covers all supported goal types.
var conversionActionTypes = map[string]bool{
	"purchase":              true,
	"lead":                  true,
	"complete_registration": true,
	"add_to_cart":           true,
}

// Service turns raw insights into model.DayStats, deriving the metrics the
// API does not report directly: conversions from action buckets, CPA from
// spend, and budget consumption rate from the user's configured daily
// budget.
type Service struct {
	client  *Client
	storage storage.Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the stats service backing the rule checker.
func NewService(client *Client, store storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		client:  client,
		storage: store,
		logger:  logger,
		now:     time.Now,
	}
}

// DailyStats returns up to days of account stats ending yesterday, oldest
// first. Days the API has no row for are omitted, not zero-filled.
func (s *Service) DailyStats(ctx context.Context, user *model.UserSettings, days int) ([]model.DayStats, error) {
	if days < 1 {
		days = 1
	}

	targets, err := s.storage.GetTargets(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}
	dailyBudget := targets[model.MetricDailyBudget]

	until := s.now().UTC().AddDate(0, 0, -1)
	since := until.AddDate(0, 0, -(days - 1))

	insights, err := s.client.DailyInsights(ctx, user.MetaAccessToken, user.MetaAccountID, since, until)
	if err != nil {
		return nil, err
	}

	stats := make([]model.DayStats, 0, len(insights))
	for _, day := range insights {
		date, err := time.Parse("2006-01-02", day.DateStart)
		if err != nil {
			s.logger.Warn("skipping insights row with bad date", "date", day.DateStart, "account", user.MetaAccountID)
			continue
		}
		stats = append(stats, derive(date, day, dailyBudget))
	}
	return stats, nil
}

// derive computes one day of metrics from a raw insights row.
func derive(date time.Time, day DayInsight, dailyBudget float64) model.DayStats {
	spend := num(day.Spend)

	var conversions float64
	for _, action := range day.Actions {
		if conversionActionTypes[action.ActionType] {
			conversions += num(action.Value)
		}
	}

	var cpa float64
	if conversions > 0 {
		cpa = spend / conversions
	}

	// Without a configured daily budget there is no rate to report. NaN marks
	// the day as unmeasured so rule evaluation ignores it; a literal 0 would
	// read as "nothing consumed" and trip below-target rules.
	budgetRate := math.NaN()
	if dailyBudget > 0 {
		budgetRate = spend / dailyBudget * 100
	}

	impressions := num(day.Impressions)
	reach := num(day.Reach)
	var frequency float64
	if reach > 0 {
		frequency = impressions / reach
	}

	return model.DayStats{
		Date:        date,
		Spend:       spend,
		Impressions: int64(impressions),
		Clicks:      int64(num(day.Clicks)),
		CTR:         num(day.CTR),
		CPM:         num(day.CPM),
		CPA:         cpa,
		Conversions: int64(math.Round(conversions)),
		BudgetRate:  budgetRate,
		Frequency:   frequency,
	}
}
