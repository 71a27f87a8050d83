package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDefaultModeTableCoversEverySurface(t *testing.T) {
	cfg := DefaultConfig()
	for _, mode := range []string{ModePost, ModeLike, ModeMix, ModeMusic} {
		_, ok := cfg.ModeTable[mode]
		assert.True(t, ok, mode)
	}
}

func TestLimitFlagAppliesToEveryMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"limit":       25,
		"incremental": true,
	})

	for _, mode := range []string{ModePost, ModeLike, ModeMix, ModeMusic} {
		setting := cfg.ModeFor(mode)
		assert.Equal(t, 25, setting.Limit, mode)
		assert.True(t, setting.Incremental, mode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Download.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Download.Workers = 32 }},
		{"zero page size", func(c *Config) { c.Fetch.PageSize = 0 }},
		{"zero page timeout", func(c *Config) { c.Fetch.PageTimeout = 0 }},
		{"zero fetch attempts", func(c *Config) { c.Fetch.MaxAttempts = 0 }},
		{"negative sweep limit", func(c *Config) { c.Download.SweepLimit = -1 }},
		{"empty output dir", func(c *Config) { c.Output.BaseDirectory = "" }},
		{"unknown mode", func(c *Config) { c.Modes = []string{"bookmarks"} }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad start time", func(c *Config) { c.Fetch.StartTime = "yesterday" }},
		{"inverted window", func(c *Config) {
			c.Fetch.StartTime = "2024-06-01"
			c.Fetch.EndTime = "2024-01-01"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTimeBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.StartTime = "2024-01-15"
	cfg.Fetch.EndTime = "2024-02-01"

	since, until, err := cfg.TimeBounds()
	require.NoError(t, err)

	assert.Equal(t, 2024, since.Year())
	assert.Equal(t, time.January, since.Month())
	assert.Equal(t, 15, since.Day())

	// End bound covers the whole day
	assert.Equal(t, 1, until.Day())
	assert.Equal(t, 23, until.Hour())
}

func TestTimeBoundsNow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.EndTime = "now"

	since, until, err := cfg.TimeBounds()
	require.NoError(t, err)
	assert.True(t, since.IsZero())
	assert.WithinDuration(t, time.Now(), until, time.Minute)
}

func TestTimeBoundsOpen(t *testing.T) {
	cfg := DefaultConfig()

	since, until, err := cfg.TimeBounds()
	require.NoError(t, err)
	assert.True(t, since.IsZero())
	assert.True(t, until.IsZero())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
links:
  - https://v.douyin.com/abc123/
douyin:
  cookie: "sid=xyz"
download:
  workers: 8
fetch:
  start_time: "2024-01-01"
mode_table:
  post:
    limit: 50
    incremental: true
media:
  music: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, []string{"https://v.douyin.com/abc123/"}, cfg.Links)
	assert.Equal(t, "sid=xyz", cfg.Douyin.Cookie)
	assert.Equal(t, 8, cfg.Download.Workers)
	assert.Equal(t, "2024-01-01", cfg.Fetch.StartTime)
	assert.True(t, cfg.Media.Music)

	post := cfg.ModeFor(ModePost)
	assert.Equal(t, 50, post.Limit)
	assert.True(t, post.Incremental)
}

func TestLoadFromFileMissingIsError(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DOUYINDL_COOKIE", "sid=env")
	t.Setenv("DOUYINDL_OUTPUT_DIR", "/tmp/archive")
	t.Setenv("DOUYINDL_WORKERS", "7")
	t.Setenv("DOUYINDL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "sid=env", cfg.Douyin.Cookie)
	assert.Equal(t, "/tmp/archive", cfg.Output.BaseDirectory)
	assert.Equal(t, 7, cfg.Download.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"links":    []string{"https://www.douyin.com/user/MS4w"},
		"path":     "/data/douyin",
		"workers":  3,
		"modes":    []string{ModePost, ModeLike},
		"no-store": true,
	})

	assert.Equal(t, []string{"https://www.douyin.com/user/MS4w"}, cfg.Links)
	assert.Equal(t, "/data/douyin", cfg.Output.BaseDirectory)
	assert.Equal(t, 3, cfg.Download.Workers)
	assert.Equal(t, []string{ModePost, ModeLike}, cfg.Modes)
	assert.False(t, cfg.Store.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("download:\n  workers: 2\n"), 0644))

	t.Setenv("DOUYINDL_WORKERS", "4")

	// Flags win over env, env over file
	cfg, err := Load(path, map[string]interface{}{"workers": 6})
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Download.Workers)

	cfg, err = Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Download.Workers)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Douyin.Cookie = "sid=saved"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "sid=saved", loaded.Douyin.Cookie)
}
