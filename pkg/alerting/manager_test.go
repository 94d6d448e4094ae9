package alerting_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komi-kou/meta-ads-dashboard/pkg/alerting"
	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func triggered(metric model.Metric, current float64) model.EvaluationResult {
	return model.EvaluationResult{
		Metric:       metric,
		Triggered:    true,
		Severity:     model.SeverityWarning,
		CurrentValue: current,
		TargetValue:  100,
		Message:      "condition met",
	}
}

func cleared(metric model.Metric) model.EvaluationResult {
	return model.EvaluationResult{Metric: metric, Triggered: false}
}

func TestManager_OpensAlertOnTrigger(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	active, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCTR, 1.2),
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.AlertActive, active[0].Status)
	assert.Equal(t, 1.2, active[0].CurrentValue)

	stored, err := db.ActiveAlert(ctx, "user-1", model.MetricCTR)
	require.NoError(t, err)
	assert.Equal(t, active[0].ID, stored.ID)
}

func TestManager_ResolvesWhenConditionClears(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	_, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCTR, 1.2),
	})
	require.NoError(t, err)

	active, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		cleared(model.MetricCTR),
	})
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = db.ActiveAlert(ctx, "user-1", model.MetricCTR)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.AlertResolved, history[0].Status)
}

func TestManager_UnchangedValueIsNoOp(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	first, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCPA, 1500),
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCPA, 1500),
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID, "same value must keep the same alert")

	history, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestManager_ChangedValueSupersedes(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	first, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCPA, 1500),
	})
	require.NoError(t, err)

	second, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCPA, 1800),
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, 1800.0, second[0].CurrentValue)

	// Exactly one active; the superseded record stays as resolved history.
	active, err := db.ActiveAlerts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	history, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestManager_AbsentMetricUntouched(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	_, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCTR, 1.2),
	})
	require.NoError(t, err)

	// A later round that never evaluated CTR must not resolve it.
	_, err = m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCPA, 1500),
	})
	require.NoError(t, err)

	_, err = db.ActiveAlert(ctx, "user-1", model.MetricCTR)
	assert.NoError(t, err)
}

func TestManager_ConcurrentReconcileSingleActive(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
				triggered(model.MetricCTR, 1.2),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := db.ActiveAlerts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1, "racing reconciles must not double-open")
}

func TestManager_PurgeExpired(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(db, discardLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	old := &model.Alert{
		UserID:       "user-1",
		Metric:       model.MetricCTR,
		CurrentValue: 1.0,
		Severity:     model.SeverityWarning,
		TriggeredAt:  now.AddDate(0, 0, -31),
		Status:       model.AlertActive,
	}
	require.NoError(t, db.InsertAlert(ctx, old))

	fresh := &model.Alert{
		UserID:       "user-1",
		Metric:       model.MetricCPA,
		CurrentValue: 1500,
		Severity:     model.SeverityCritical,
		TriggeredAt:  now,
		Status:       model.AlertActive,
	}
	require.NoError(t, db.InsertAlert(ctx, fresh))

	purged, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	remaining, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

// blackoutStore fails ActiveAlert lookups for one metric so Reconcile's
// per-metric isolation can be observed.
type blackoutStore struct {
	storage.Storage
	metric model.Metric
}

func (s *blackoutStore) ActiveAlert(ctx context.Context, userID string, metric model.Metric) (*model.Alert, error) {
	if metric == s.metric {
		return nil, errors.New("storage offline")
	}
	return s.Storage.ActiveAlert(ctx, userID, metric)
}

func TestManager_ReconcileContinuesPastFailingMetric(t *testing.T) {
	db := newTestDB(t)
	m := alerting.NewManager(&blackoutStore{Storage: db, metric: model.MetricCTR}, discardLogger())
	ctx := context.Background()

	active, err := m.Reconcile(ctx, "user-1", []model.EvaluationResult{
		triggered(model.MetricCTR, 1.2),
		triggered(model.MetricCPA, 1500),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(model.MetricCTR))

	// The CPA alert still opened even though CTR came first and failed.
	require.Len(t, active, 1)
	assert.Equal(t, model.MetricCPA, active[0].Metric)

	stored, err := db.ActiveAlerts(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.MetricCPA, stored[0].Metric)
}
