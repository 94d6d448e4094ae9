package storage_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newAlert(userID string, metric model.Metric, value float64, at time.Time) *model.Alert {
	return &model.Alert{
		UserID:       userID,
		Metric:       metric,
		TargetValue:  100,
		CurrentValue: value,
		Severity:     model.SeverityWarning,
		Message:      "test alert",
		TriggeredAt:  at,
		Status:       model.AlertActive,
	}
}

func TestSQLite_InsertAndGetActiveAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", model.MetricCTR, 1.2, time.Now().UTC())
	alert.CheckItems = []model.CheckItem{{Priority: 1, Title: "check", Description: "desc"}}
	alert.Improvements = []string{"do something"}
	require.NoError(t, db.InsertAlert(ctx, alert))
	assert.NotEmpty(t, alert.ID)

	got, err := db.ActiveAlert(ctx, "user-1", model.MetricCTR)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)
	assert.Equal(t, model.AlertActive, got.Status)
	assert.Len(t, got.CheckItems, 1)
	assert.Len(t, got.Improvements, 1)
	assert.Nil(t, got.ResolvedAt)
}

func TestSQLite_ActiveAlert_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.ActiveAlert(context.Background(), "nobody", model.MetricCPA)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_ResolveAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", model.MetricCPM, 2500, time.Now().UTC())
	require.NoError(t, db.InsertAlert(ctx, alert))

	resolvedAt := time.Now().UTC()
	require.NoError(t, db.ResolveAlert(ctx, alert.ID, resolvedAt))

	_, err := db.ActiveAlert(ctx, "user-1", model.MetricCPM)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.AlertResolved, history[0].Status)
	require.NotNil(t, history[0].ResolvedAt)

	// Resolving twice reports not found: the active row is gone.
	assert.ErrorIs(t, db.ResolveAlert(ctx, alert.ID, resolvedAt), storage.ErrNotFound)
}

func TestSQLite_ActiveAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.InsertAlert(ctx, newAlert("user-1", model.MetricCTR, 1.0, now)))
	require.NoError(t, db.InsertAlert(ctx, newAlert("user-1", model.MetricCPA, 3000, now)))
	require.NoError(t, db.InsertAlert(ctx, newAlert("user-2", model.MetricCTR, 0.5, now)))

	alerts, err := db.ActiveAlerts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestSQLite_PurgeAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newAlert("user-1", model.MetricCTR, 1.0, now.AddDate(0, 0, -31))
	require.NoError(t, db.InsertAlert(ctx, old))
	require.NoError(t, db.ResolveAlert(ctx, old.ID, now.AddDate(0, 0, -30)))

	oldActive := newAlert("user-1", model.MetricCPA, 9999, now.AddDate(0, 0, -31))
	require.NoError(t, db.InsertAlert(ctx, oldActive))

	fresh := newAlert("user-1", model.MetricCPM, 2500, now)
	require.NoError(t, db.InsertAlert(ctx, fresh))

	purged, err := db.PurgeAlerts(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged, "retention applies regardless of status")

	remaining, err := db.ListAlerts(ctx, "user-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestSQLite_TryAcquireSend(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := db.TryAcquireSend(ctx, "user-1|daily|2025-06-01|09", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TryAcquireSend(ctx, "user-1|daily|2025-06-01|09", now)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire of the same key must fail")

	ok, err = db.TryAcquireSend(ctx, "user-1|daily|2025-06-01|10", now)
	require.NoError(t, err)
	assert.True(t, ok, "next hour bucket is a fresh key")
}

func TestSQLite_TryAcquireSend_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	granted := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.TryAcquireSend(ctx, "race-key", time.Now().UTC())
			assert.NoError(t, err)
			granted <- ok
		}()
	}
	wg.Wait()
	close(granted)

	wins := 0
	for ok := range granted {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent caller may win the key")
}

func TestSQLite_PruneSendRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.TryAcquireSend(ctx, "old-key", now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = db.TryAcquireSend(ctx, "new-key", now)
	require.NoError(t, err)

	pruned, err := db.PruneSendRecords(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	// The pruned key becomes acquirable again.
	ok, err := db.TryAcquireSend(ctx, "old-key", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_Users(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.UserSettings{
		Email:              "ops@example.com",
		Name:               "運用担当",
		Goal:               model.GoalToBNewsletter,
		ChatworkToken:      "cw-token",
		ChatworkRoomID:     "12345",
		MetaAccessToken:    "meta-token",
		MetaAccountID:      "act_1",
		DailyReportEnabled: true,
		AlertEnabled:       true,
	}
	require.NoError(t, db.UpsertUser(ctx, user))
	assert.NotEmpty(t, user.ID)

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoalToBNewsletter, got.Goal)
	assert.True(t, got.DailyReportEnabled)
	assert.False(t, got.UpdateEnabled)

	// Upsert with same ID updates in place.
	user.ChatworkRoomID = "99999"
	require.NoError(t, db.UpsertUser(ctx, user))
	got, err = db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "99999", got.ChatworkRoomID)
}

func TestSQLite_GetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_ListActiveUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertUser(ctx, &model.UserSettings{
		ID: "configured", ChatworkToken: "tok", ChatworkRoomID: "1",
	}))
	require.NoError(t, db.UpsertUser(ctx, &model.UserSettings{
		ID: "unconfigured",
	}))

	users, err := db.ListActiveUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "configured", users[0].ID)
}

func TestSQLite_Targets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetTarget(ctx, "user-1", model.MetricCPA, 1000))
	require.NoError(t, db.SetTarget(ctx, "user-1", model.MetricCPM, 1800))

	targets, err := db.GetTargets(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, map[model.Metric]float64{
		model.MetricCPA: 1000,
		model.MetricCPM: 1800,
	}, targets)

	// Updating overwrites.
	require.NoError(t, db.SetTarget(ctx, "user-1", model.MetricCPA, 1200))
	targets, err = db.GetTargets(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1200.0, targets[model.MetricCPA])

	// A non-positive value unsets the target.
	require.NoError(t, db.SetTarget(ctx, "user-1", model.MetricCPA, 0))
	targets, err = db.GetTargets(ctx, "user-1")
	require.NoError(t, err)
	_, ok := targets[model.MetricCPA]
	assert.False(t, ok)
}

func TestSQLite_SetTarget_UnknownMetric(t *testing.T) {
	db := newTestDB(t)
	err := db.SetTarget(context.Background(), "user-1", model.Metric("frequency"), 1.5)
	assert.Error(t, err)
}

func TestSQLite_MigrationIdempotency(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db1, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	db1.Close()

	db2, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	db2.Close()
}
