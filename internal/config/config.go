package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. TRIAGEBOT_DISCORD_TOKEN.
const EnvPrefix = "TRIAGEBOT"

// Config is the root configuration for triagebot.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Discord  DiscordConfig  `mapstructure:"discord" yaml:"discord"`
	Request  RequestConfig  `mapstructure:"request" yaml:"request"`
	Modmail  ModmailConfig  `mapstructure:"modmail" yaml:"modmail"`
	Commands CommandsConfig `mapstructure:"commands" yaml:"commands"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug | info | warn | error
	Format string `mapstructure:"format" yaml:"format"` // text | json
}

type DiscordConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	GuildID string `mapstructure:"guild_id" yaml:"guild_id,omitempty"` // optional: ignore other guilds
}

// RequestConfig lists the request channels. Channels, InternalChannels and
// RequestLimits are index-aligned: request channel i forwards into internal
// channel i and allows RequestLimits[i] requests per user per day.
type RequestConfig struct {
	Channels               []string `mapstructure:"channels" yaml:"channels"`
	InternalChannels       []string `mapstructure:"internal_channels" yaml:"internal_channels"`
	RequestLimits          []int    `mapstructure:"request_limits" yaml:"request_limits,omitempty"` // negative = unlimited
	TestingRequestChannels []string `mapstructure:"testing_request_channels" yaml:"testing_request_channels"`
}

type ModmailConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	NotePrefix string `mapstructure:"note_prefix" yaml:"note_prefix"` // staff messages starting with this stay in the thread
}

type CommandsConfig struct {
	Prefix         string  `mapstructure:"prefix" yaml:"prefix"`
	TicketURL      string  `mapstructure:"ticket_url" yaml:"ticket_url"` // fmt pattern, %s = ticket key
	LinkBurst      int     `mapstructure:"link_burst" yaml:"link_burst"`
	LinksPerMinute float64 `mapstructure:"links_per_minute" yaml:"links_per_minute"`
}

type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// envKeys are the keys that may be overridden from the environment.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"discord.token",
	"discord.guild_id",
	"modmail.enabled",
	"modmail.channel",
	"storage.enabled",
	"storage.db_path",
	"metrics.enabled",
	"metrics.listen",
}

// DefaultConfigDir returns the default config directory (~/.triagebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".triagebot"
	}
	return filepath.Join(home, ".triagebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a YAML or JSON config file into a fresh viper instance.
func Load(path string) (*Config, error) {
	return LoadWithViper(viper.New(), path)
}

// LoadWithViper reads the config file into v, so that flags already bound to
// v take part in the precedence order (flag > env > file > default).
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	v.SetConfigType(configType(path))
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config file %s: %w", path, err)
	}

	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, "logging.format must be one of: text, json")
	}

	req := cfg.Request
	if len(req.InternalChannels) != len(req.Channels) {
		errs = append(errs, fmt.Sprintf("request.internal_channels has %d entries, request.channels has %d; they must be index-aligned",
			len(req.InternalChannels), len(req.Channels)))
	}
	if len(req.RequestLimits) != 0 && len(req.RequestLimits) != len(req.Channels) {
		errs = append(errs, fmt.Sprintf("request.request_limits has %d entries, request.channels has %d; leave it empty or align it",
			len(req.RequestLimits), len(req.Channels)))
	}
	for i, id := range req.Channels {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Sprintf("request.channels[%d] is empty", i))
		}
	}

	if cfg.Modmail.Enabled && cfg.Modmail.Channel == "" {
		errs = append(errs, "modmail.channel is required when modmail is enabled")
	}

	if strings.TrimSpace(cfg.Commands.Prefix) == "" {
		errs = append(errs, "commands.prefix must not be empty")
	}
	if strings.Count(cfg.Commands.TicketURL, "%s") != 1 {
		errs = append(errs, "commands.ticket_url must contain exactly one %s")
	}

	if cfg.Storage.Enabled && cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path is required when storage is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
