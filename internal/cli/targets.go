package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage per-user metric goals",
}

var targetsSetCmd = &cobra.Command{
	Use:   "set <user> <metric> <value>",
	Short: "Set a metric goal (0 removes it)",
	Args:  cobra.ExactArgs(3),
	RunE:  runTargetsSet,
}

var targetsListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List a user's metric goals",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsList,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
	targetsCmd.AddCommand(targetsSetCmd)
	targetsCmd.AddCommand(targetsListCmd)
}

func runTargetsSet(_ *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	userID := args[0]
	metric := model.Metric(args[1])
	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[2], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.store.SetTarget(ctx, userID, metric, value); err != nil {
		return err
	}

	if value <= 0 {
		fmt.Printf("removed %s target for %s\n", metric, userID)
	} else {
		fmt.Printf("set %s target for %s: %s\n", metric, userID, model.FormatValue(metric, value))
	}
	return nil
}

func runTargetsList(_ *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	targets, err := e.store.GetTargets(ctx, args[0])
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("no targets configured")
		return nil
	}

	metrics := make([]model.Metric, 0, len(targets))
	for metric := range targets {
		metrics = append(metrics, metric)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Priority() < metrics[j].Priority() })

	for _, metric := range metrics {
		fmt.Printf("%-12s %s\n", metric, model.FormatValue(metric, targets[metric]))
	}
	return nil
}
