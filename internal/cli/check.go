package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate alert rules now",
	Long:  `Evaluates every rule for one user (or all active users) and reconciles the stored alerts. No notifications are sent.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("user", "u", "", "Check a single user")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	userID, _ := cmd.Flags().GetString("user")
	if userID != "" {
		alerts, err := e.checker.CheckUser(ctx, userID)
		if err != nil {
			return err
		}
		printAlerts(userID, alerts)
		return nil
	}

	users, err := e.store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	for i := range users {
		alerts, err := e.checker.CheckUser(ctx, users[i].ID)
		if err != nil {
			fmt.Printf("%s: check failed: %v\n", users[i].ID, err)
			continue
		}
		printAlerts(users[i].ID, alerts)
	}
	return nil
}

func printAlerts(userID string, alerts []model.Alert) {
	if len(alerts) == 0 {
		fmt.Printf("%s: no active alerts\n", userID)
		return
	}
	fmt.Printf("%s: %d active alert(s)\n", userID, len(alerts))
	for _, alert := range alerts {
		fmt.Printf("  [%s] %s: %s → %s\n",
			alert.Severity,
			alert.Metric.DisplayName(),
			model.FormatValue(alert.Metric, alert.TargetValue),
			model.FormatValue(alert.Metric, alert.CurrentValue),
		)
	}
}
