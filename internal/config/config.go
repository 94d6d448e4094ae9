package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all dashboard notification engine configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Dedupe    DedupeConfig    `mapstructure:"dedupe"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// DedupeConfig selects the notification dedup store. Backend is one of
// "sqlite", "redis", or "memory".
type DedupeConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// SchedulerConfig defines when each notification class fires. Hours are in
// the configured timezone.
type SchedulerConfig struct {
	Timezone      string `mapstructure:"timezone"`
	DailyHours    []int  `mapstructure:"daily_hours"`
	UpdateHours   []int  `mapstructure:"update_hours"`
	AlertHours    []int  `mapstructure:"alert_hours"`
	TokenHours    []int  `mapstructure:"token_hours"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// NotifyConfig defines notification rendering settings.
type NotifyConfig struct {
	DashboardURL string `mapstructure:"dashboard_url"`
}

// RulesConfig defines rule evaluation settings. An empty ChecklistPath uses
// the catalog embedded in the binary.
type RulesConfig struct {
	ChecklistPath string `mapstructure:"checklist_path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".mad"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".mad", "dashboard.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("dedupe.backend", "sqlite")
	v.SetDefault("dedupe.redis_addr", "localhost:6379")
	v.SetDefault("dedupe.redis_db", 0)
	v.SetDefault("scheduler.timezone", "Asia/Tokyo")
	v.SetDefault("scheduler.daily_hours", []int{9})
	v.SetDefault("scheduler.update_hours", []int{12, 15, 17, 19})
	v.SetDefault("scheduler.alert_hours", []int{9, 12, 15, 17, 19})
	v.SetDefault("scheduler.token_hours", []int{9})
	v.SetDefault("scheduler.retention_days", 30)
	v.SetDefault("notify.dashboard_url", "https://meta-ads-dashboard.onrender.com")
	v.SetDefault("rules.checklist_path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("MAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
