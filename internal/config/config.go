package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"riftledger/internal/collector"
	"riftledger/internal/rank"
	"riftledger/internal/riot"
	"riftledger/internal/store"
)

// EnvPaths are the .env locations tried in order; the first one found wins.
var EnvPaths = []string{".env", "../.env", "../../.env"}

// Config represents the application configuration.
type Config struct {
	Riot    RiotConfig    `toml:"riot"`
	Store   StoreConfig   `toml:"store"`
	Sync    SyncConfig    `toml:"sync"`
	Rank    RankConfig    `toml:"rank"`
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Discord DiscordConfig `toml:"discord"`
	Archive ArchiveConfig `toml:"archive"`
}

// RiotConfig contains Riot API access settings.
type RiotConfig struct {
	APIKey        string  `toml:"api_key"`
	Region        string  `toml:"region"`          // Regional route (americas, europe, asia, sea)
	Platform      string  `toml:"platform"`        // Platform route (na1, euw1, ...)
	RatePerSecond float64 `toml:"rate_per_second"` // Client-side request budget
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver    string `toml:"driver"` // sqlite, libsql or postgres
	DSN       string `toml:"dsn"`    // File path for sqlite, URL otherwise
	AuthToken string `toml:"auth_token"`
}

// SyncConfig contains sync engine tuning.
type SyncConfig struct {
	SeasonStart   string `toml:"season_start"`   // RFC3339
	BatchPause    string `toml:"batch_pause"`    // e.g. "350ms"
	TimelineDelay string `toml:"timeline_delay"` // Pause between timeline backfill requests
	SpecialQueues []int  `toml:"special_queues"`
}

// RankConfig contains rank cache settings.
type RankConfig struct {
	Delay string `toml:"delay"` // Pause between rank requests
	TTL   string `toml:"ttl"`   // Cache freshness window
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
	Env   string `toml:"env"`   // production or development
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port string `toml:"port"`
}

// DiscordConfig contains notification settings. Empty values disable the
// corresponding feature.
type DiscordConfig struct {
	WebhookURL string `toml:"webhook_url"`
	BotToken   string `toml:"bot_token"`
	ChannelID  string `toml:"channel_id"`
}

// ArchiveConfig contains JSONL archive settings. An empty Dir disables it.
type ArchiveConfig struct {
	Dir        string `toml:"dir"`
	MaxEntries int    `toml:"max_entries"`
	MaxAge     string `toml:"max_age"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Riot: RiotConfig{
			Region:        "americas",
			Platform:      "na1",
			RatePerSecond: riot.DefaultRequestsPerSecond,
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    "data/riftledger.db",
		},
		Sync: SyncConfig{
			SeasonStart:   collector.DefaultSeasonStart.Format(time.RFC3339),
			BatchPause:    collector.DefaultBatchPause.String(),
			TimelineDelay: collector.DefaultTimelineDelay.String(),
			SpecialQueues: collector.DefaultSpecialQueues(),
		},
		Rank: RankConfig{
			Delay: rank.DefaultDelay.String(),
			TTL:   rank.DefaultTTL.String(),
		},
		Log: LogConfig{
			Level: "info",
			Env:   "production",
		},
		Server: ServerConfig{
			Port: "8080",
		},
		Archive: ArchiveConfig{
			MaxEntries: 1000,
			MaxAge:     "1h",
		},
	}
}

// LoadDotEnv loads the first .env file found in EnvPaths and reports which
// one, or "" when none exists.
func LoadDotEnv() string {
	for _, path := range EnvPaths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds the configuration from defaults, the TOML file named by
// RIFT_CONFIG (if any), and environment variables, in increasing order of
// precedence. Call LoadDotEnv first for .env support.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("RIFT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Riot.APIKey, "RIOT-DEV-KEY", "RIOT_API_KEY")
	setString(&c.Riot.Region, "RIOT_REGION")
	setString(&c.Riot.Platform, "RIOT_PLATFORM")
	if v := os.Getenv("RIOT_RATE_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RIOT_RATE_PER_SECOND %q: %w", v, err)
		}
		c.Riot.RatePerSecond = rps
	}

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.DSN, "DATABASE_URL", "STORE_DSN")
	setString(&c.Store.AuthToken, "TURSO_AUTH_TOKEN")

	setString(&c.Sync.SeasonStart, "SEASON_START")
	setString(&c.Sync.BatchPause, "SYNC_BATCH_PAUSE")
	setString(&c.Sync.TimelineDelay, "TIMELINE_DELAY")
	if v := os.Getenv("SPECIAL_QUEUES"); v != "" {
		queues, err := parseQueues(v)
		if err != nil {
			return err
		}
		c.Sync.SpecialQueues = queues
	}

	setString(&c.Rank.Delay, "RANK_DELAY")
	setString(&c.Rank.TTL, "RANK_TTL")

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Env, "ENV")
	setString(&c.Server.Port, "PORT")

	setString(&c.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	setString(&c.Discord.BotToken, "DISCORD_BOT_TOKEN")
	setString(&c.Discord.ChannelID, "DISCORD_CHANNEL_ID")

	setString(&c.Archive.Dir, "ARCHIVE_DIR")
	return nil
}

// setString overwrites dst with the last non-empty variable among keys.
func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

func parseQueues(v string) ([]int, error) {
	var queues []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		q, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid SPECIAL_QUEUES entry %q: %w", part, err)
		}
		queues = append(queues, q)
	}
	return queues, nil
}

var (
	validRegions = map[string]bool{"americas": true, "europe": true, "asia": true, "sea": true}
	validDrivers = map[string]bool{store.DriverSQLite: true, store.DriverLibSQL: true, store.DriverPostgres: true}
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Riot.APIKey == "" {
		return fmt.Errorf("riot api key not set (RIOT_API_KEY or RIOT-DEV-KEY)")
	}
	if !validRegions[c.Riot.Region] {
		return fmt.Errorf("unknown riot region %q", c.Riot.Region)
	}
	if c.Riot.Platform == "" {
		return fmt.Errorf("riot platform not set")
	}
	if c.Riot.RatePerSecond <= 0 {
		return fmt.Errorf("rate per second must be positive: %v", c.Riot.RatePerSecond)
	}

	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == store.DriverLibSQL && c.Store.DSN == "" {
		return fmt.Errorf("libsql driver needs a database url")
	}

	if _, err := time.Parse(time.RFC3339, c.Sync.SeasonStart); err != nil {
		return fmt.Errorf("invalid season start %q: %w", c.Sync.SeasonStart, err)
	}
	for name, value := range map[string]string{
		"batch pause":     c.Sync.BatchPause,
		"timeline delay":  c.Sync.TimelineDelay,
		"rank delay":      c.Rank.Delay,
		"rank TTL":        c.Rank.TTL,
		"archive max age": c.Archive.MaxAge,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d < 0 {
			return fmt.Errorf("%s cannot be negative: %s", name, value)
		}
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Archive.MaxEntries < 0 {
		return fmt.Errorf("archive max entries cannot be negative: %d", c.Archive.MaxEntries)
	}
	if (c.Discord.BotToken == "") != (c.Discord.ChannelID == "") {
		return fmt.Errorf("discord bot token and channel id must be set together")
	}

	return nil
}

// SeasonStartTime returns the parsed season start.
func (c *Config) SeasonStartTime() time.Time {
	t, _ := time.Parse(time.RFC3339, c.Sync.SeasonStart)
	return t
}

// EngineConfig returns the sync engine configuration.
func (c *Config) EngineConfig() collector.Config {
	cfg := collector.DefaultConfig()
	cfg.SeasonStart = c.SeasonStartTime()
	cfg.SpecialQueues = c.Sync.SpecialQueues
	cfg.BatchPause = mustDuration(c.Sync.BatchPause)
	cfg.TimelineDelay = mustDuration(c.Sync.TimelineDelay)
	return cfg
}

// RankDelay returns the pause between rank requests.
func (c *Config) RankDelay() time.Duration { return mustDuration(c.Rank.Delay) }

// RankTTL returns the rank cache freshness window.
func (c *Config) RankTTL() time.Duration { return mustDuration(c.Rank.TTL) }

// ArchiveMaxAge returns how long an archive file stays hot.
func (c *Config) ArchiveMaxAge() time.Duration { return mustDuration(c.Archive.MaxAge) }

// Development reports whether ENV selects the development logger.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Log.Env, "development") || strings.EqualFold(c.Log.Env, "dev")
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
