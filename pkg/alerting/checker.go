package alerting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/rules"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// MetricsSource provides daily ad performance for a user, newest day last.
// It may return fewer days than requested when history is short.
type MetricsSource interface {
	DailyStats(ctx context.Context, user *model.UserSettings, days int) ([]model.DayStats, error)
}

// Checker runs a full evaluation round for one user: load settings and
// targets, fetch the metric window, evaluate every rule, and reconcile the
// results into the alert store.
type Checker struct {
	storage   storage.Storage
	metrics   MetricsSource
	manager   *Manager
	evaluator *rules.Evaluator
	logger    *slog.Logger
}

// NewChecker wires a checker from its collaborators.
func NewChecker(store storage.Storage, metrics MetricsSource, manager *Manager, evaluator *rules.Evaluator, logger *slog.Logger) *Checker {
	return &Checker{
		storage:   store,
		metrics:   metrics,
		manager:   manager,
		evaluator: evaluator,
		logger:    logger,
	}
}

// CheckUser evaluates all rules for the user's goal type and returns the
// alerts active after reconciliation. One metric failing to evaluate does
// not abort the others.
func (c *Checker) CheckUser(ctx context.Context, userID string) ([]model.Alert, error) {
	user, err := c.storage.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	targets, err := c.storage.GetTargets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load targets for %s: %w", userID, err)
	}

	catalog := rules.CatalogFor(user.Goal)
	stats, err := c.metrics.DailyStats(ctx, user, rules.MaxDays(catalog))
	if err != nil {
		return nil, fmt.Errorf("fetch daily stats for %s: %w", userID, err)
	}

	results := make([]model.EvaluationResult, 0, len(catalog))
	for _, rule := range catalog {
		samples := rule.Metric.Samples(stats)
		result := c.evaluator.Evaluate(rule, targetFor(rule.Metric, targets), samples)
		results = append(results, result)
	}

	// Reconcile applies what it can even when some metrics fail; keep the
	// alerts it did produce so callers can still notify on them.
	active, err := c.manager.Reconcile(ctx, userID, results)
	if err != nil {
		return active, fmt.Errorf("reconcile for %s: %w", userID, err)
	}

	if _, err := c.manager.PurgeExpired(ctx); err != nil {
		c.logger.Warn("purge after check failed", "user", userID, "error", err)
	}

	return active, nil
}

// targetFor builds the evaluation target for a metric, or nil when the user
// has not configured one. Unconfigured metrics are skipped, never defaulted.
func targetFor(metric model.Metric, targets map[model.Metric]float64) *model.TargetConfig {
	value, ok := targets[metric]
	if !ok || value <= 0 {
		return nil
	}
	return &model.TargetConfig{
		Metric:      metric,
		Direction:   metric.Direction(),
		TargetValue: value,
	}
}
