package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RIFT_CONFIG", "RIOT-DEV-KEY", "RIOT_API_KEY", "RIOT_REGION", "RIOT_PLATFORM",
		"RIOT_RATE_PER_SECOND", "STORE_DRIVER", "DATABASE_URL", "STORE_DSN",
		"TURSO_AUTH_TOKEN", "SEASON_START", "SYNC_BATCH_PAUSE", "TIMELINE_DELAY",
		"SPECIAL_QUEUES", "RANK_DELAY", "RANK_TTL", "LOG_LEVEL", "ENV", "PORT",
		"DISCORD_WEBHOOK_URL", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "ARCHIVE_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIOT_API_KEY", "RGAPI-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "americas", cfg.Riot.Region)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, []int{1700, 1710, 900, 1900}, cfg.Sync.SpecialQueues)
	assert.Equal(t, time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC), cfg.SeasonStartTime())
	assert.Equal(t, 24*time.Hour, cfg.RankTTL())
	assert.Equal(t, 150*time.Millisecond, cfg.RankDelay())
	assert.False(t, cfg.Development())

	ec := cfg.EngineConfig()
	assert.Equal(t, 350*time.Millisecond, ec.BatchPause)
	assert.Equal(t, 1200*time.Millisecond, ec.TimelineDelay)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "rift.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[riot]
api_key = "RGAPI-from-file"
region = "europe"
platform = "euw1"

[store]
driver = "postgres"
dsn = "postgres://file"

[sync]
special_queues = [1700]
batch_pause = "1s"

[log]
level = "debug"
env = "development"
`), 0o644))

	t.Setenv("RIFT_CONFIG", path)
	t.Setenv("STORE_DSN", "postgres://env")
	t.Setenv("SPECIAL_QUEUES", "900, 1900")
	t.Setenv("RANK_TTL", "6h")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "RGAPI-from-file", cfg.Riot.APIKey)
	assert.Equal(t, "europe", cfg.Riot.Region)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://env", cfg.Store.DSN)
	assert.Equal(t, []int{900, 1900}, cfg.Sync.SpecialQueues)
	assert.Equal(t, time.Second, cfg.EngineConfig().BatchPause)
	assert.Equal(t, 6*time.Hour, cfg.RankTTL())
	assert.True(t, cfg.Development())
}

func TestLoad_DevKeyAndDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIOT-DEV-KEY", "RGAPI-dev")
	t.Setenv("DATABASE_URL", "libsql://db.turso.io")
	t.Setenv("STORE_DRIVER", "libsql")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "RGAPI-dev", cfg.Riot.APIKey)
	assert.Equal(t, "libsql://db.turso.io", cfg.Store.DSN)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPECIAL_QUEUES", "1700,arena")
	_, err := Load()
	assert.ErrorContains(t, err, "SPECIAL_QUEUES")

	clearEnv(t)
	t.Setenv("RIOT_RATE_PER_SECOND", "fast")
	_, err = Load()
	assert.ErrorContains(t, err, "RIOT_RATE_PER_SECOND")

	clearEnv(t)
	t.Setenv("RIFT_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	_, err = Load()
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Riot.APIKey = "RGAPI-test"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"missing key":     {func(c *Config) { c.Riot.APIKey = "" }, "api key"},
		"unknown region":  {func(c *Config) { c.Riot.Region = "mars" }, `unknown riot region "mars"`},
		"unknown driver":  {func(c *Config) { c.Store.Driver = "mongo" }, `unknown store driver "mongo"`},
		"libsql no url":   {func(c *Config) { c.Store.Driver = "libsql"; c.Store.DSN = "" }, "database url"},
		"bad season":      {func(c *Config) { c.Sync.SeasonStart = "2026-01-08" }, "season start"},
		"bad duration":    {func(c *Config) { c.Rank.TTL = "forever" }, "rank TTL"},
		"negative pause":  {func(c *Config) { c.Sync.BatchPause = "-1s" }, "negative"},
		"bad level":       {func(c *Config) { c.Log.Level = "loud" }, "log level"},
		"half discord":    {func(c *Config) { c.Discord.BotToken = "token" }, "channel id"},
		"zero rate limit": {func(c *Config) { c.Riot.RatePerSecond = 0 }, "rate per second"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
