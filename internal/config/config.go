// Package config loads and validates the YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for barfly.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Log       LogConfig       `yaml:"log"`
	Limits    LimitsConfig    `yaml:"limits"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Backend   BackendConfig   `yaml:"backend"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Store     StoreConfig     `yaml:"store"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type GeneralConfig struct {
	BotID    string `yaml:"botId"`
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile,omitempty"`
}

// LogConfig describes the inbound message log (Redis Streams).
type LogConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password,omitempty"`
	DB       int      `yaml:"db"`
	Streams  []string `yaml:"streams"`

	MaxMessageAgeSeconds   int `yaml:"maxMessageAgeSeconds"`
	ClockSkewBufferSeconds int `yaml:"clockSkewBufferSeconds"`
	QueueSize              int `yaml:"queueSize"`
}

type LimitsConfig struct {
	MaxPerWindow    int `yaml:"maxPerWindow"`
	WindowSeconds   int `yaml:"windowSeconds"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

type DedupConfig struct {
	Capacity         int `yaml:"capacity"`
	RetentionSeconds int `yaml:"retentionSeconds"`
}

type BackendConfig struct {
	APIBase        string  `yaml:"apiBase"`
	APIKey         string  `yaml:"apiKey"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"maxTokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

type KnowledgeConfig struct {
	OddsFeed        ProviderConfig `yaml:"oddsfeed"`
	VenueBuzz       ProviderConfig `yaml:"venuebuzz"`
	CacheTTLSeconds int            `yaml:"cacheTtlSeconds"`
	TimeoutSeconds  int            `yaml:"timeoutSeconds"`
}

type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey,omitempty"`
}

type StoreConfig struct {
	DBPath       string `yaml:"dbPath"`
	HistoryLimit int    `yaml:"historyLimit"`
}

type GatewayConfig struct {
	Kind     string         `yaml:"kind"` // "telegram" | "discord"
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type TelegramConfig struct {
	Token     string `yaml:"token"`
	ParseMode string `yaml:"parseMode,omitempty"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type DeliveryConfig struct {
	MaxAttempts      int `yaml:"maxAttempts"`
	BaseDelaySeconds int `yaml:"baseDelaySeconds"`
	MaxDelaySeconds  int `yaml:"maxDelaySeconds"`
	MaxChars         int `yaml:"maxChars"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfigPath returns ~/.barfly/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".barfly", "config.yaml")
	}
	return filepath.Join(home, ".barfly", "config.yaml")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.BotID == "" {
		errs = append(errs, "general.botId is required")
	}
	if cfg.Log.Addr == "" {
		errs = append(errs, "log.addr is required")
	}
	if len(cfg.Log.Streams) == 0 {
		errs = append(errs, "log.streams must name at least one stream")
	}
	if cfg.Log.MaxMessageAgeSeconds < 1 {
		errs = append(errs, "log.maxMessageAgeSeconds must be >= 1")
	}
	if cfg.Limits.MaxPerWindow < 1 {
		errs = append(errs, "limits.maxPerWindow must be >= 1")
	}
	if cfg.Limits.WindowSeconds < 1 {
		errs = append(errs, "limits.windowSeconds must be >= 1")
	}
	if cfg.Dedup.Capacity < 1 {
		errs = append(errs, "dedup.capacity must be >= 1")
	}
	switch cfg.Gateway.Kind {
	case "telegram":
		if cfg.Gateway.Telegram.Token == "" {
			errs = append(errs, "gateway.telegram.token is required")
		}
	case "discord":
		if cfg.Gateway.Discord.Token == "" {
			errs = append(errs, "gateway.discord.token is required")
		}
	default:
		errs = append(errs, "gateway.kind must be one of: telegram, discord")
	}
	if cfg.Delivery.MaxAttempts < 1 {
		errs = append(errs, "delivery.maxAttempts must be >= 1")
	}
	if cfg.Store.HistoryLimit < 1 {
		errs = append(errs, "store.historyLimit must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Duration helpers for the seconds-typed fields.

func (c LogConfig) MaxMessageAge() time.Duration {
	return time.Duration(c.MaxMessageAgeSeconds) * time.Second
}

func (c LogConfig) ClockSkewBuffer() time.Duration {
	return time.Duration(c.ClockSkewBufferSeconds) * time.Second
}

func (c LimitsConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func (c LimitsConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c DedupConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c KnowledgeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c KnowledgeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c DeliveryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelaySeconds) * time.Second
}

func (c DeliveryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelaySeconds) * time.Second
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
