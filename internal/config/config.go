// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"pugbot.db"`

	RedisAddr      string `env:"REDIS_ADDR"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	EventQueueName string `env:"EVENT_QUEUE_NAME" envDefault:"pugbot_events"`

	DiscordToken   string `env:"DISCORD_TOKEN"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID"`
	SettingsPath   string `env:"SETTINGS_PATH" envDefault:"settings.json"`

	// ResultGrace is how long a resolved match stays on display.
	ResultGrace  time.Duration `env:"RESULT_GRACE" envDefault:"5s"`
	CooldownUnit time.Duration `env:"COOLDOWN_UNIT" envDefault:"1m"`

	TokenExpire time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"24h"`
	DevTokens   bool          `env:"DEV_TOKENS" envDefault:"false"`

	HistorianBatchSize     int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"100"`
	HistorianFlushInterval time.Duration `env:"HISTORIAN_FLUSH_INTERVAL" envDefault:"2s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for store driver %q", c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.ResultGrace < 0 {
		return fmt.Errorf("RESULT_GRACE must not be negative")
	}
	if c.CooldownUnit <= 0 {
		return fmt.Errorf("COOLDOWN_UNIT must be positive")
	}
	return nil
}

// Level returns the logrus level for LogLevel, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
