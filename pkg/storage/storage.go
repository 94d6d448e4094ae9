package storage

import (
	"context"
	"errors"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines the persistence layer for alerts, users, targets, and
// notification send records.
type Storage interface {
	// InsertAlert persists a new alert instance.
	InsertAlert(ctx context.Context, alert *model.Alert) error

	// ActiveAlert returns the single active alert for a (user, metric)
	// pair, or ErrNotFound.
	ActiveAlert(ctx context.Context, userID string, metric model.Metric) (*model.Alert, error)

	// ActiveAlerts returns all active alerts for a user.
	ActiveAlerts(ctx context.Context, userID string) ([]model.Alert, error)

	// ListAlerts returns a user's alerts triggered at or after since,
	// newest first, regardless of status.
	ListAlerts(ctx context.Context, userID string, since time.Time) ([]model.Alert, error)

	// ResolveAlert transitions an alert to resolved.
	ResolveAlert(ctx context.Context, id string, at time.Time) error

	// PurgeAlerts deletes alerts triggered before the cutoff, regardless
	// of status, and reports how many were removed.
	PurgeAlerts(ctx context.Context, olderThan time.Time) (int64, error)

	// TryAcquireSend atomically records a notification send key. It
	// returns true exactly once per key; concurrent callers racing on the
	// same key see a single winner.
	TryAcquireSend(ctx context.Context, key string, at time.Time) (bool, error)

	// PruneSendRecords deletes send records older than the cutoff.
	PruneSendRecords(ctx context.Context, olderThan time.Time) (int64, error)

	// UpsertUser creates or updates a user's settings.
	UpsertUser(ctx context.Context, user *model.UserSettings) error

	// GetUser retrieves one user's settings, or ErrNotFound.
	GetUser(ctx context.Context, id string) (*model.UserSettings, error)

	// ListActiveUsers returns users with a configured Chatwork channel.
	ListActiveUsers(ctx context.Context) ([]model.UserSettings, error)

	// SetTarget stores a user's goal value for a metric. A non-positive
	// value removes the target, returning the metric to "not monitored".
	SetTarget(ctx context.Context, userID string, metric model.Metric, value float64) error

	// GetTargets returns the user's configured targets. Absence of a
	// metric key means "not monitored".
	GetTargets(ctx context.Context, userID string) (map[model.Metric]float64, error)

	// Close releases resources.
	Close() error
}
