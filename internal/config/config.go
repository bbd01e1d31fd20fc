package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Path    string `mapstructure:"path"`
	LogMode bool   `mapstructure:"log_mode"`
}

type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Metrics bool   `mapstructure:"metrics"`
}

type LedgerConfig struct {
	DefaultUser    string `mapstructure:"default_user"`
	DefaultAccount string `mapstructure:"default_account"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
	Timezone       string `mapstructure:"timezone"`
}

type DiscordConfig struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// BotEnabled reports whether both discord credentials are present.
func (c *Config) BotEnabled() bool {
	return c.Discord.Token != "" && c.Discord.ChannelID != ""
}

// Location returns the time zone used for month keys.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is fine; any other failure is returned.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env file: %w", err)
	}
	return nil
}

// Load reads configuration from the optional file at path, then from
// FINBOARD_* environment variables (e.g. FINBOARD_DATABASE_PATH).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FINBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "finboard.db")
	v.SetDefault("database.log_mode", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics", true)
	v.SetDefault("ledger.default_user", "local")
	v.SetDefault("ledger.default_account", "")
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("ledger.timezone", "Local")
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is not set")
	}
	if c.Ledger.DefaultUser == "" {
		return fmt.Errorf("default user is not set")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.Ledger.MaxAttempts)
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Ledger.Timezone, err)
	}
	if (c.Discord.Token == "") != (c.Discord.ChannelID == "") {
		return fmt.Errorf("discord token and channel ID must be set together")
	}
	return nil
}
