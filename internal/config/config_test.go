package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komi-kou/meta-ads-dashboard/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "sqlite", cfg.Dedupe.Backend)
	assert.Equal(t, "Asia/Tokyo", cfg.Scheduler.Timezone)
	assert.Equal(t, []int{9}, cfg.Scheduler.DailyHours)
	assert.Equal(t, []int{12, 15, 17, 19}, cfg.Scheduler.UpdateHours)
	assert.Equal(t, []int{9, 12, 15, 17, 19}, cfg.Scheduler.AlertHours)
	assert.Equal(t, 30, cfg.Scheduler.RetentionDays)
	assert.Empty(t, cfg.Rules.ChecklistPath)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	data := []byte(`
storage:
  path: /tmp/test.db
server:
  listen: ":9090"
dedupe:
  backend: redis
  redis_addr: redis.internal:6379
scheduler:
  timezone: UTC
  retention_days: 14
rules:
  checklist_path: /etc/mad/checklists.yaml
logging:
  level: debug
`)
	err := os.WriteFile(cfgPath, data, 0o644)
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.Path)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "redis", cfg.Dedupe.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Dedupe.RedisAddr)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 14, cfg.Scheduler.RetentionDays)
	assert.Equal(t, "/etc/mad/checklists.yaml", cfg.Rules.ChecklistPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MAD_LOGGING_LEVEL", "error")
	t.Setenv("MAD_SERVER_LISTEN", ":7070")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Server.Listen)
}

func TestLoad_BadTimezone(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("scheduler:\n  timezone: Mars/Olympus\n"), 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	_, err = cfg.Location()
	assert.Error(t, err)
}
