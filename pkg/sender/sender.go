// Package sender fans notifications out to every configured user, gating
// each send on the hourly deduplicator and the user's per-class opt-in
// flags.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/alerting"
	"github.com/komi-kou/meta-ads-dashboard/pkg/dedupe"
	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/notify"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// tokenWarnAge is how old an access token may grow before the expiry
// reminder fires. Meta long-lived tokens last about 60 days; warning at 53
// gives users a week.
const tokenWarnAge = 53 * 24 * time.Hour

// defaultSpacing is the pause between users in fan-out sends, a courtesy to
// the Chatwork rate limiter.
const defaultSpacing = time.Second

// MultiUserSender dispatches each notification class to all active users.
type MultiUserSender struct {
	storage  storage.Storage
	dedupe   *dedupe.Deduplicator
	renderer *notify.Renderer
	chatwork notify.Sender
	metrics  alerting.MetricsSource
	logger   *slog.Logger
	now      func() time.Time
	spacing  time.Duration
}

// New wires a sender from its collaborators.
func New(store storage.Storage, dedup *dedupe.Deduplicator, renderer *notify.Renderer, chatwork notify.Sender, metrics alerting.MetricsSource, logger *slog.Logger) *MultiUserSender {
	return &MultiUserSender{
		storage:  store,
		dedupe:   dedup,
		renderer: renderer,
		chatwork: chatwork,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		spacing:  defaultSpacing,
	}
}

// SetSpacing overrides the pause between users in fan-out sends. Tests set
// it to zero.
func (s *MultiUserSender) SetSpacing(d time.Duration) {
	s.spacing = d
}

// SetClock overrides the time source.
func (s *MultiUserSender) SetClock(now func() time.Time) {
	s.now = now
}

// SendDailyReport sends yesterday's performance summary to one user.
// Returns nil when the send is skipped (class disabled, already sent this
// hour, or no data for the day).
func (s *MultiUserSender) SendDailyReport(ctx context.Context, user *model.UserSettings) error {
	if !user.DailyReportEnabled {
		s.logger.Debug("daily report disabled", "user", user.ID)
		return nil
	}
	ok, err := s.dedupe.TryAcquire(ctx, user.ID, model.NotificationDaily)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("daily report already sent this hour", "user", user.ID)
		return nil
	}

	stats, err := s.metrics.DailyStats(ctx, user, 1)
	if err != nil {
		return fmt.Errorf("fetch daily stats: %w", err)
	}
	if len(stats) == 0 {
		s.logger.Info("no stats for daily report", "user", user.ID)
		return nil
	}

	day := stats[len(stats)-1]
	message := s.renderer.RenderDailyReport(day.Date, day)
	if err := s.chatwork.Send(ctx, user.ChatworkToken, user.ChatworkRoomID, message); err != nil {
		return fmt.Errorf("send daily report: %w", err)
	}
	s.logger.Info("daily report sent", "user", user.ID)
	return nil
}

// SendUpdateNotification sends the periodic "numbers refreshed" notice.
func (s *MultiUserSender) SendUpdateNotification(ctx context.Context, user *model.UserSettings) error {
	if !user.UpdateEnabled {
		s.logger.Debug("update notifications disabled", "user", user.ID)
		return nil
	}
	ok, err := s.dedupe.TryAcquire(ctx, user.ID, model.NotificationUpdate)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Info("update notification already sent this hour", "user", user.ID)
		return nil
	}

	if err := s.chatwork.Send(ctx, user.ChatworkToken, user.ChatworkRoomID, s.renderer.RenderUpdateNotification()); err != nil {
		return fmt.Errorf("send update notification: %w", err)
	}
	s.logger.Info("update notification sent", "user", user.ID)
	return nil
}

// SendAlertNotification sends the user's active alerts. In test mode the
// hourly gate is skipped and sample alerts are used, so recipients can
// verify their channel without waiting for a real incident.
func (s *MultiUserSender) SendAlertNotification(ctx context.Context, user *model.UserSettings, testMode bool) error {
	if !user.AlertEnabled {
		s.logger.Debug("alert notifications disabled", "user", user.ID)
		return nil
	}
	if !testMode {
		ok, err := s.dedupe.TryAcquire(ctx, user.ID, model.NotificationAlert)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Info("alert notification already sent this hour", "user", user.ID)
			return nil
		}
	}

	var alerts []model.Alert
	if testMode {
		alerts = sampleAlerts(s.now())
	} else {
		var err error
		alerts, err = s.storage.ActiveAlerts(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("load active alerts: %w", err)
		}
	}

	message := s.renderer.RenderAlerts(s.now(), alerts, testMode)
	if message == "" {
		s.logger.Info("no active alerts to send", "user", user.ID)
		return nil
	}

	if err := s.chatwork.Send(ctx, user.ChatworkToken, user.ChatworkRoomID, message); err != nil {
		return fmt.Errorf("send alert notification: %w", err)
	}
	s.logger.Info("alert notification sent", "user", user.ID, "alerts", len(alerts), "test_mode", testMode)
	return nil
}

// SendTokenReminder warns the user when their access token is a week from
// expiry. With force set the age check is skipped.
func (s *MultiUserSender) SendTokenReminder(ctx context.Context, user *model.UserSettings, force bool) error {
	if !force {
		if user.MetaTokenUpdatedAt.IsZero() || s.now().Sub(user.MetaTokenUpdatedAt) < tokenWarnAge {
			return nil
		}
		ok, err := s.dedupe.TryAcquire(ctx, user.ID, model.NotificationToken)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if err := s.chatwork.Send(ctx, user.ChatworkToken, user.ChatworkRoomID, s.renderer.RenderTokenReminder()); err != nil {
		return fmt.Errorf("send token reminder: %w", err)
	}
	s.logger.Info("token reminder sent", "user", user.ID)
	return nil
}

// SendDailyReportToAll fans the daily report out to every active user.
func (s *MultiUserSender) SendDailyReportToAll(ctx context.Context) error {
	return s.forEachUser(ctx, "daily report", func(ctx context.Context, user *model.UserSettings) error {
		return s.SendDailyReport(ctx, user)
	})
}

// SendUpdateNotificationToAll fans the update notice out to every active
// user.
func (s *MultiUserSender) SendUpdateNotificationToAll(ctx context.Context) error {
	return s.forEachUser(ctx, "update notification", func(ctx context.Context, user *model.UserSettings) error {
		return s.SendUpdateNotification(ctx, user)
	})
}

// SendAlertNotificationToAll fans active-alert notifications out to every
// active user.
func (s *MultiUserSender) SendAlertNotificationToAll(ctx context.Context) error {
	return s.forEachUser(ctx, "alert notification", func(ctx context.Context, user *model.UserSettings) error {
		return s.SendAlertNotification(ctx, user, false)
	})
}

// SendTokenRemindersToAll checks every active user's token age and warns
// those close to expiry.
func (s *MultiUserSender) SendTokenRemindersToAll(ctx context.Context) error {
	return s.forEachUser(ctx, "token reminder", func(ctx context.Context, user *model.UserSettings) error {
		return s.SendTokenReminder(ctx, user, false)
	})
}

// forEachUser runs one send per active user. A failure for one user is
// logged and does not stop the rest; sends are spaced apart.
func (s *MultiUserSender) forEachUser(ctx context.Context, what string, send func(context.Context, *model.UserSettings) error) error {
	users, err := s.storage.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	for i := range users {
		if i > 0 && s.spacing > 0 {
			select {
			case <-time.After(s.spacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := send(ctx, &users[i]); err != nil {
			s.logger.Error("send failed", "what", what, "user", users[i].ID, "error", err)
		}
	}
	return nil
}

// sampleAlerts builds the fixture alerts used by channel verification
// sends.
func sampleAlerts(now time.Time) []model.Alert {
	return []model.Alert{
		{Metric: model.MetricCTR, TargetValue: 1.0, CurrentValue: 0.8, Severity: model.SeverityWarning, TriggeredAt: now, Status: model.AlertActive},
		{Metric: model.MetricCPM, TargetValue: 1800, CurrentValue: 2100, Severity: model.SeverityWarning, TriggeredAt: now, Status: model.AlertActive},
		{Metric: model.MetricConversions, TargetValue: 1, CurrentValue: 0, Severity: model.SeverityCritical, TriggeredAt: now, Status: model.AlertActive},
		{Metric: model.MetricBudgetRate, TargetValue: 80, CurrentValue: 95, Severity: model.SeverityCritical, TriggeredAt: now, Status: model.AlertActive},
	}
}
