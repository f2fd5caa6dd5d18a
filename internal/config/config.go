package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Limit is one rate-limit budget as read from the environment.
type Limit struct {
	Amount   int           `env:"AMOUNT" envDefault:"10"`
	Interval time.Duration `env:"INTERVAL" envDefault:"30s"`
}

// Config is the bot's environment. DevGuildID, when set, limits slash
// command sync to that guild.
type Config struct {
	Token      string `env:"DISCORD_TOKEN"`
	AppID      string `env:"DISCORD_APP_ID"`
	DevGuildID string `env:"DISCORD_DEV_GUILD_ID"`
	Prefix     string `env:"BOT_PREFIX" envDefault:"?"`
	SupportURL string `env:"SUPPORT_URL"`

	// Developers is read from BOT_DEVELOPERS, comma-separated.
	Developers []string

	DatabasePath string `env:"DATABASE_PATH" envDefault:"bento.db"`

	CommandLimit    Limit `envPrefix:"RATE_LIMIT_COMMANDS_"`
	ButtonLimit     Limit `envPrefix:"RATE_LIMIT_BUTTONS_"`
	ReactionLimit   Limit `envPrefix:"RATE_LIMIT_REACTIONS_"`
	SelectMenuLimit Limit `envPrefix:"RATE_LIMIT_SELECT_MENUS_"`

	GuildsPerShard    int           `env:"GUILDS_PER_SHARD" envDefault:"1000"`
	ShardSpawnDelay   time.Duration `env:"SHARD_SPAWN_DELAY" envDefault:"5.5s"`
	ShardSpawnTimeout time.Duration `env:"SHARD_SPAWN_TIMEOUT" envDefault:"30s"`
	CoordinatorURL    string        `env:"CLUSTER_COORDINATOR_URL"`
	CoordinatorToken  string        `env:"CLUSTER_COORDINATOR_TOKEN"`

	XPCooldown   time.Duration `env:"XP_COOLDOWN" envDefault:"60s"`
	OTelEndpoint string        `env:"OTEL_ENDPOINT"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string        `env:"LOG_FORMAT" envDefault:"text"`
}

// Clustered reports whether shard assignment comes from a coordinator.
func (c *Config) Clustered() bool {
	return c.CoordinatorURL != ""
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Parse comma-separated developer IDs
	if developers := os.Getenv("BOT_DEVELOPERS"); developers != "" {
		for _, id := range strings.Split(developers, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.Developers = append(cfg.Developers, id)
			}
		}
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("BOT_PREFIX is required")
	}
	if cfg.GuildsPerShard <= 0 {
		return nil, fmt.Errorf("GUILDS_PER_SHARD must be positive")
	}
	if cfg.CoordinatorURL != "" && cfg.CoordinatorToken == "" {
		return nil, fmt.Errorf("CLUSTER_COORDINATOR_TOKEN is required")
	}
	for name, l := range map[string]Limit{
		"COMMANDS":     cfg.CommandLimit,
		"BUTTONS":      cfg.ButtonLimit,
		"REACTIONS":    cfg.ReactionLimit,
		"SELECT_MENUS": cfg.SelectMenuLimit,
	} {
		if l.Amount <= 0 || l.Interval <= 0 {
			return nil, fmt.Errorf("RATE_LIMIT_%s_AMOUNT and RATE_LIMIT_%s_INTERVAL must be positive", name, name)
		}
	}

	return cfg, nil
}
