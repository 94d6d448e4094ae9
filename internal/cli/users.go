package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage dashboard users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add or update a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersAdd,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users with a configured Chatwork channel",
	RunE:  runUsersList,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersListCmd)

	usersAddCmd.Flags().String("id", "", "Existing user ID to update")
	usersAddCmd.Flags().String("name", "", "Display name")
	usersAddCmd.Flags().String("goal", string(model.DefaultGoal), "Campaign goal type")
	usersAddCmd.Flags().String("chatwork-token", "", "Chatwork API token")
	usersAddCmd.Flags().String("chatwork-room", "", "Chatwork room ID")
	usersAddCmd.Flags().String("meta-token", "", "Meta access token")
	usersAddCmd.Flags().String("meta-account", "", "Meta ad account ID (act_...)")
	usersAddCmd.Flags().Bool("daily", true, "Enable the daily report")
	usersAddCmd.Flags().Bool("update", true, "Enable periodic update notifications")
	usersAddCmd.Flags().Bool("alert", true, "Enable alert notifications")
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	goalFlag, _ := cmd.Flags().GetString("goal")
	goal := model.GoalType(goalFlag)
	if !goal.Valid() {
		return fmt.Errorf("unknown goal type %q", goalFlag)
	}

	user := &model.UserSettings{
		Email: args[0],
		Goal:  goal,
	}
	user.ID, _ = cmd.Flags().GetString("id")
	user.Name, _ = cmd.Flags().GetString("name")
	user.ChatworkToken, _ = cmd.Flags().GetString("chatwork-token")
	user.ChatworkRoomID, _ = cmd.Flags().GetString("chatwork-room")
	user.MetaAccessToken, _ = cmd.Flags().GetString("meta-token")
	user.MetaAccountID, _ = cmd.Flags().GetString("meta-account")
	user.DailyReportEnabled, _ = cmd.Flags().GetBool("daily")
	user.UpdateEnabled, _ = cmd.Flags().GetBool("update")
	user.AlertEnabled, _ = cmd.Flags().GetBool("alert")
	if user.MetaAccessToken != "" {
		user.MetaTokenUpdatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.store.UpsertUser(ctx, user); err != nil {
		return err
	}
	fmt.Printf("user %s saved\n", user.ID)
	return nil
}

func runUsersList(_ *cobra.Command, _ []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	users, err := e.store.ListActiveUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("no active users")
		return nil
	}
	for _, user := range users {
		fmt.Printf("%-36s %-24s goal=%s room=%s\n", user.ID, user.Email, user.Goal, user.ChatworkRoomID)
	}
	return nil
}
