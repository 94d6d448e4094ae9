package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a notification now",
	Long: `Sends one notification class immediately. Without --user the send fans
out to all active users; with --test the hourly deduplication gate is
skipped and alert sends use sample data.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("type", "t", "", "Notification type: daily, update, alert, or token (required)")
	sendCmd.Flags().StringP("user", "u", "", "Send to a single user")
	sendCmd.Flags().Bool("test", false, "Bypass the hourly gate; alert sends use sample data")
	sendCmd.MarkFlagRequired("type")
}

func runSend(cmd *cobra.Command, _ []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	typeFlag, _ := cmd.Flags().GetString("type")
	userID, _ := cmd.Flags().GetString("user")
	testMode, _ := cmd.Flags().GetBool("test")

	typ := model.NotificationType(typeFlag)
	switch typ {
	case model.NotificationDaily, model.NotificationUpdate, model.NotificationAlert, model.NotificationToken:
	default:
		return fmt.Errorf("unknown notification type %q", typeFlag)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if userID == "" {
		if testMode {
			return fmt.Errorf("--test requires --user")
		}
		switch typ {
		case model.NotificationDaily:
			return e.sender.SendDailyReportToAll(ctx)
		case model.NotificationUpdate:
			return e.sender.SendUpdateNotificationToAll(ctx)
		case model.NotificationAlert:
			if err := e.checkAllUsers(ctx); err != nil {
				return err
			}
			return e.sender.SendAlertNotificationToAll(ctx)
		case model.NotificationToken:
			return e.sender.SendTokenRemindersToAll(ctx)
		}
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}

	s := e.sender
	if testMode {
		s = e.testSender
	}

	switch typ {
	case model.NotificationDaily:
		err = s.SendDailyReport(ctx, user)
	case model.NotificationUpdate:
		err = s.SendUpdateNotification(ctx, user)
	case model.NotificationAlert:
		err = e.sender.SendAlertNotification(ctx, user, testMode)
	case model.NotificationToken:
		err = s.SendTokenReminder(ctx, user, testMode)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s notification processed for %s\n", typ, userID)
	return nil
}
