package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements the Storage interface using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) InsertAlert(ctx context.Context, alert *model.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = time.Now().UTC()
	}
	if alert.Status == "" {
		alert.Status = model.AlertActive
	}

	checkItems, err := json.Marshal(alert.CheckItems)
	if err != nil {
		return fmt.Errorf("marshal check items: %w", err)
	}
	improvements, err := json.Marshal(alert.Improvements)
	if err != nil {
		return fmt.Errorf("marshal improvements: %w", err)
	}

	var resolvedAt any
	if alert.ResolvedAt != nil {
		resolvedAt = *alert.ResolvedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, user_id, metric, target_value, current_value, severity, message, check_items, improvements, triggered_at, status, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.UserID, alert.Metric, alert.TargetValue, alert.CurrentValue,
		alert.Severity, alert.Message, string(checkItems), string(improvements),
		alert.TriggeredAt, alert.Status, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *SQLite) ActiveAlert(ctx context.Context, userID string, metric model.Metric) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, metric, target_value, current_value, severity, message, check_items, improvements, triggered_at, status, resolved_at
		 FROM alerts WHERE user_id = ? AND metric = ? AND status = 'active'
		 ORDER BY triggered_at DESC LIMIT 1`,
		userID, metric,
	)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active alert: %w", err)
	}
	return alert, nil
}

func (s *SQLite) ActiveAlerts(ctx context.Context, userID string) ([]model.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, user_id, metric, target_value, current_value, severity, message, check_items, improvements, triggered_at, status, resolved_at
		 FROM alerts WHERE user_id = ? AND status = 'active'
		 ORDER BY triggered_at DESC`,
		userID)
}

func (s *SQLite) ListAlerts(ctx context.Context, userID string, since time.Time) ([]model.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, user_id, metric, target_value, current_value, severity, message, check_items, improvements, triggered_at, status, resolved_at
		 FROM alerts WHERE user_id = ? AND triggered_at >= ?
		 ORDER BY triggered_at DESC`,
		userID, since)
}

func (s *SQLite) queryAlerts(ctx context.Context, query string, args ...any) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var (
		a            model.Alert
		checkItems   string
		improvements string
		resolvedAt   sql.NullTime
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Metric, &a.TargetValue, &a.CurrentValue,
		&a.Severity, &a.Message, &checkItems, &improvements, &a.TriggeredAt, &a.Status, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checkItems), &a.CheckItems); err != nil {
		return nil, fmt.Errorf("unmarshal check items: %w", err)
	}
	if err := json.Unmarshal([]byte(improvements), &a.Improvements); err != nil {
		return nil, fmt.Errorf("unmarshal improvements: %w", err)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func (s *SQLite) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = 'resolved', resolved_at = ? WHERE id = ? AND status = 'active'`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) PurgeAlerts(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE triggered_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLite) TryAcquireSend(ctx context.Context, key string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO send_records (send_key, sent_at) VALUES (?, ?) ON CONFLICT(send_key) DO NOTHING`,
		key, at,
	)
	if err != nil {
		return false, fmt.Errorf("acquire send record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return rows == 1, nil
}

func (s *SQLite) PruneSendRecords(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM send_records WHERE sent_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune send records: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLite) UpsertUser(ctx context.Context, user *model.UserSettings) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Goal == "" {
		user.Goal = model.DefaultGoal
	}

	var tokenUpdatedAt any
	if !user.MetaTokenUpdatedAt.IsZero() {
		tokenUpdatedAt = user.MetaTokenUpdatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, goal, chatwork_token, chatwork_room_id, meta_access_token, meta_account_id,
		                    daily_report_enabled, update_enabled, alert_enabled, meta_token_updated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email,
		   name = excluded.name,
		   goal = excluded.goal,
		   chatwork_token = excluded.chatwork_token,
		   chatwork_room_id = excluded.chatwork_room_id,
		   meta_access_token = excluded.meta_access_token,
		   meta_account_id = excluded.meta_account_id,
		   daily_report_enabled = excluded.daily_report_enabled,
		   update_enabled = excluded.update_enabled,
		   alert_enabled = excluded.alert_enabled,
		   meta_token_updated_at = excluded.meta_token_updated_at,
		   updated_at = excluded.updated_at`,
		user.ID, user.Email, user.Name, user.Goal, user.ChatworkToken, user.ChatworkRoomID,
		user.MetaAccessToken, user.MetaAccountID,
		user.DailyReportEnabled, user.UpdateEnabled, user.AlertEnabled,
		tokenUpdatedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *SQLite) GetUser(ctx context.Context, id string) (*model.UserSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, goal, chatwork_token, chatwork_room_id, meta_access_token, meta_account_id,
		        daily_report_enabled, update_enabled, alert_enabled, meta_token_updated_at, created_at, updated_at
		 FROM users WHERE id = ?`, id,
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *SQLite) ListActiveUsers(ctx context.Context) ([]model.UserSettings, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, goal, chatwork_token, chatwork_room_id, meta_access_token, meta_account_id,
		        daily_report_enabled, update_enabled, alert_enabled, meta_token_updated_at, created_at, updated_at
		 FROM users WHERE chatwork_token != '' AND chatwork_room_id != ''
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var users []model.UserSettings
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func scanUser(row rowScanner) (*model.UserSettings, error) {
	var (
		u              model.UserSettings
		tokenUpdatedAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Goal, &u.ChatworkToken, &u.ChatworkRoomID,
		&u.MetaAccessToken, &u.MetaAccountID,
		&u.DailyReportEnabled, &u.UpdateEnabled, &u.AlertEnabled,
		&tokenUpdatedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if tokenUpdatedAt.Valid {
		u.MetaTokenUpdatedAt = tokenUpdatedAt.Time
	}
	return &u, nil
}

func (s *SQLite) SetTarget(ctx context.Context, userID string, metric model.Metric, value float64) error {
	if !metric.Valid() {
		return fmt.Errorf("set target: unknown metric %q", metric)
	}

	// A non-positive value unsets the target; the metric is no longer
	// monitored and never falls back to a default.
	if value <= 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM targets WHERE user_id = ? AND metric = ?`, userID, metric); err != nil {
			return fmt.Errorf("unset target: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (user_id, metric, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, metric) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		userID, metric, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set target: %w", err)
	}
	return nil
}

func (s *SQLite) GetTargets(ctx context.Context, userID string) (map[model.Metric]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metric, value FROM targets WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	defer rows.Close()

	targets := make(map[model.Metric]float64)
	for rows.Next() {
		var metric model.Metric
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		if value > 0 {
			targets[metric] = value
		}
	}
	return targets, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
