package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/internal/scheduler"
	"github.com/komi-kou/meta-ads-dashboard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the notification scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Serve the API without the notification scheduler")
}

func runServe(cmd *cobra.Command, _ []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		e.cfg.Server.Listen = listen
	}
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	apiServer := server.NewServer(e.store, e.checker, e.sender, e.testSender, e.logger)

	readTimeout, _ := time.ParseDuration(e.cfg.Server.ReadTimeout)
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout, _ := time.ParseDuration(e.cfg.Server.WriteTimeout)
	if writeTimeout == 0 {
		writeTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         e.cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !noScheduler {
		sched := scheduler.New(e.loc, e.logger)
		sched.Add(scheduler.Job{
			Name:  "daily-report",
			Hours: e.cfg.Scheduler.DailyHours,
			Run:   e.sender.SendDailyReportToAll,
		})
		sched.Add(scheduler.Job{
			Name:  "update-notification",
			Hours: e.cfg.Scheduler.UpdateHours,
			Run:   e.sender.SendUpdateNotificationToAll,
		})
		sched.Add(scheduler.Job{
			Name:  "alert-notification",
			Hours: e.cfg.Scheduler.AlertHours,
			Run: func(ctx context.Context) error {
				// Evaluate first so the send reflects the current hour's data.
				if err := e.checkAllUsers(ctx); err != nil {
					return err
				}
				return e.sender.SendAlertNotificationToAll(ctx)
			},
		})
		sched.Add(scheduler.Job{
			Name:  "token-reminder",
			Hours: e.cfg.Scheduler.TokenHours,
			Run:   e.sender.SendTokenRemindersToAll,
		})
		go func() {
			if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("scheduler exited", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("server started", "listen", e.cfg.Server.Listen)
		fmt.Fprintf(os.Stderr, "Meta Ads Dashboard listening on %s\n", e.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		e.logger.Info("shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	e.logger.Info("server stopped")
	return nil
}
