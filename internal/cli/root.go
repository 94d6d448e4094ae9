package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/komi-kou/meta-ads-dashboard/internal/config"
	"github.com/komi-kou/meta-ads-dashboard/pkg/alerting"
	"github.com/komi-kou/meta-ads-dashboard/pkg/dedupe"
	"github.com/komi-kou/meta-ads-dashboard/pkg/metaads"
	"github.com/komi-kou/meta-ads-dashboard/pkg/notify"
	"github.com/komi-kou/meta-ads-dashboard/pkg/rules"
	"github.com/komi-kou/meta-ads-dashboard/pkg/sender"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mad",
	Short: "Meta Ads Dashboard - metric alerting and Chatwork notifications",
	Long: `Meta Ads Dashboard evaluates each user's ad performance against their
goals, keeps an alert per drifting metric, and notifies users over Chatwork
on a fixed schedule with hourly send deduplication.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mad/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// engine is the fully wired notification stack shared by the commands.
type engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      storage.Storage
	loc        *time.Location
	checker    *alerting.Checker
	manager    *alerting.Manager
	sender     *sender.MultiUserSender
	testSender *sender.MultiUserSender
	redis      *redis.Client
}

// buildEngine assembles storage, dedup, the rule checker, and the senders
// from configuration.
func buildEngine() (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	e := &engine{cfg: cfg, logger: logger, store: store, loc: loc}

	var dedupStore dedupe.Store
	switch cfg.Dedupe.Backend {
	case "redis":
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Dedupe.RedisAddr,
			Password: cfg.Dedupe.RedisPassword,
			DB:       cfg.Dedupe.RedisDB,
		})
		dedupStore = dedupe.NewRedisStore(e.redis, 0)
	case "memory":
		dedupStore = dedupe.NewMemoryStore()
	case "sqlite":
		dedupStore = dedupe.NewSQLStore(store)
	default:
		store.Close()
		return nil, fmt.Errorf("unknown dedupe backend %q", cfg.Dedupe.Backend)
	}
	dedup := dedupe.New(dedupStore, loc)

	metaClient := metaads.NewClient(logger)
	metrics := metaads.NewService(metaClient, store, logger)

	e.manager = alerting.NewManager(store, logger)
	if cfg.Scheduler.RetentionDays > 0 {
		e.manager.SetRetention(time.Duration(cfg.Scheduler.RetentionDays) * 24 * time.Hour)
	}
	checklist, err := loadChecklist(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	e.checker = alerting.NewChecker(store, metrics, e.manager, rules.NewEvaluator(checklist), logger)

	chatwork := notify.NewChatworkClient(logger)
	renderer := notify.NewRenderer(loc, cfg.Notify.DashboardURL)
	e.sender = sender.New(store, dedup, renderer, chatwork, metrics, logger)
	e.testSender = sender.New(store, dedupe.Bypass(), renderer, chatwork, metrics, logger)

	return e, nil
}

// loadChecklist resolves the check-item catalog attached to alerts: a
// configured file path wins, otherwise the embedded default. A catalog that
// fails to parse aborts startup rather than silently stripping every alert
// of its remediation guidance.
func loadChecklist(cfg *config.Config) (*rules.ChecklistCatalog, error) {
	if path := cfg.Rules.ChecklistPath; path != "" {
		catalog, err := rules.LoadChecklistCatalog(path)
		if err != nil {
			return nil, fmt.Errorf("load checklist catalog: %w", err)
		}
		return catalog, nil
	}
	catalog, err := rules.DefaultChecklistCatalog()
	if err != nil {
		return nil, fmt.Errorf("load embedded checklist catalog: %w", err)
	}
	return catalog, nil
}

// Close releases the engine's connections.
func (e *engine) Close() {
	if e.redis != nil {
		e.redis.Close()
	}
	e.store.Close()
}

// checkAllUsers evaluates every active user, isolating per-user failures.
func (e *engine) checkAllUsers(ctx context.Context) error {
	users, err := e.store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	for i := range users {
		if _, err := e.checker.CheckUser(ctx, users[i].ID); err != nil {
			e.logger.Error("check failed", "user", users[i].ID, "error", err)
		}
	}
	return nil
}
