// Package alerting maintains the alert lifecycle: at most one active alert
// per user and metric, resolution when the condition clears, and retention
// purging of old records.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// DefaultRetention is how long alert records are kept before purging,
// regardless of status.
const DefaultRetention = 30 * 24 * time.Hour

// Manager reconciles evaluation results against stored alerts.
type Manager struct {
	storage   storage.Storage
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates an alert lifecycle manager with the default retention.
func NewManager(store storage.Storage, logger *slog.Logger) *Manager {
	return &Manager{
		storage:   store,
		logger:    logger,
		retention: DefaultRetention,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetRetention overrides the alert retention window. Non-positive values
// are ignored.
func (m *Manager) SetRetention(d time.Duration) {
	if d > 0 {
		m.retention = d
	}
}

// lockFor returns the mutex guarding one (user, metric) pair. Reconciles for
// different pairs proceed in parallel; for the same pair they serialize so
// two racing checks cannot both open an alert.
func (m *Manager) lockFor(userID string, metric model.Metric) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + string(metric)
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Reconcile applies one round of evaluation results to the stored alert
// state and returns the alerts active for the evaluated metrics afterwards.
// Metrics absent from results are left untouched. Re-running with the same
// results is a no-op. A failure on one metric does not block the others:
// the remaining results are still applied and the errors come back joined.
func (m *Manager) Reconcile(ctx context.Context, userID string, results []model.EvaluationResult) ([]model.Alert, error) {
	var active []model.Alert
	var errs []error
	for _, result := range results {
		alert, err := m.reconcileMetric(ctx, userID, result)
		if err != nil {
			m.logger.Error("reconcile failed",
				"user", userID,
				"metric", result.Metric,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("reconcile %s: %w", result.Metric, err))
			continue
		}
		if alert != nil {
			active = append(active, *alert)
		}
	}
	return active, errors.Join(errs...)
}

// reconcileMetric holds the per-pair lock across the read-check-write so the
// one-active-alert invariant survives concurrent reconciles.
func (m *Manager) reconcileMetric(ctx context.Context, userID string, result model.EvaluationResult) (*model.Alert, error) {
	lock := m.lockFor(userID, result.Metric)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.storage.ActiveAlert(ctx, userID, result.Metric)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	}

	if !result.Triggered {
		if existing == nil {
			return nil, nil
		}
		if err := m.storage.ResolveAlert(ctx, existing.ID, m.now().UTC()); err != nil {
			return nil, fmt.Errorf("resolve alert %s: %w", existing.ID, err)
		}
		m.logger.Info("alert resolved",
			"user", userID,
			"metric", result.Metric,
			"alert_id", existing.ID,
		)
		return nil, nil
	}

	if existing != nil {
		if existing.CurrentValue == result.CurrentValue {
			return existing, nil
		}
		// Condition persists at a new value: supersede the old record so
		// history shows the progression.
		if err := m.storage.ResolveAlert(ctx, existing.ID, m.now().UTC()); err != nil {
			return nil, fmt.Errorf("supersede alert %s: %w", existing.ID, err)
		}
	}

	alert := &model.Alert{
		UserID:       userID,
		Metric:       result.Metric,
		TargetValue:  result.TargetValue,
		CurrentValue: result.CurrentValue,
		Severity:     result.Severity,
		Message:      result.Message,
		CheckItems:   result.CheckItems,
		Improvements: result.Improvements,
		TriggeredAt:  m.now().UTC(),
		Status:       model.AlertActive,
	}
	if err := m.storage.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("open alert: %w", err)
	}
	m.logger.Info("alert opened",
		"user", userID,
		"metric", result.Metric,
		"severity", result.Severity,
		"current", result.CurrentValue,
		"target", result.TargetValue,
	)
	return alert, nil
}

// PurgeExpired deletes alerts older than the retention window.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := m.now().UTC().Add(-m.retention)
	purged, err := m.storage.PurgeAlerts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	if purged > 0 {
		m.logger.Info("purged expired alerts", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}
