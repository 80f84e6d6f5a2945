package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/clareza/clareza/internal/api"
)

// Config represents the backend configuration
type Config struct {
	Port      int             `yaml:"port" toml:"port"`
	Bind      string          `yaml:"bind" toml:"bind"`
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	DataDir   string          `yaml:"data_dir" toml:"data_dir"` // Root for history, documents, recent index
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	Documents DocumentsConfig `yaml:"documents" toml:"documents"`
}

// BridgeConfig holds settings for the external AI tool.
type BridgeConfig struct {
	Tool           string        `yaml:"tool" toml:"tool"`     // Executable base name searched on PATH
	Binary         string        `yaml:"binary" toml:"binary"` // Explicit path, skips the PATH scan
	Model          string        `yaml:"model" toml:"model"`
	Mode           string        `yaml:"mode" toml:"mode"`                       // oneshot, interactive
	PromptDelivery string        `yaml:"prompt_delivery" toml:"prompt_delivery"` // stdin, argument
	Timeout        time.Duration `yaml:"timeout" toml:"timeout"`
	EventBuffer    int           `yaml:"event_buffer" toml:"event_buffer"`   // Dispatcher queue capacity
	ReplayBuffer   int           `yaml:"replay_buffer" toml:"replay_buffer"` // Notifications kept for late subscribers
}

// DocumentsConfig holds document store settings.
type DocumentsConfig struct {
	Language          string `yaml:"language" toml:"language"`
	VersionsRetention int    `yaml:"versions_retention" toml:"versions_retention"`
	BackupSchedule    string `yaml:"backup_schedule" toml:"backup_schedule"` // cron spec, empty disables
	BackupBatch       int    `yaml:"backup_batch" toml:"backup_batch"`
}

// Defaults
const (
	DefaultPort              = 9400
	DefaultBind              = "127.0.0.1"
	DefaultLogLevel          = "info"
	DefaultDataDir           = "" // Derived from CLAREZA_ROOT or ~/.clareza
	DefaultTool              = "gemini"
	DefaultModel             = "gemini-2.5-flash"
	DefaultMode              = api.ModeOneShot
	DefaultPromptDelivery    = api.DeliveryStdin
	DefaultTimeout           = 120 * time.Second
	DefaultEventBuffer       = 256
	DefaultReplayBuffer      = 1000
	DefaultLanguage          = "pt-BR"
	DefaultVersionsRetention = 20
	DefaultBackupSchedule    = "@every 15m"
	DefaultBackupBatch       = 5
)

// Models lists the model identifiers the tool accepts, default first.
var Models = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"}

// Parse parses YAML config data
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.DataDir = DefaultDataDir
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return finish(cfg)
}

// ParseTOML parses TOML config data
func ParseTOML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.DataDir = DefaultDataDir
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataPath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads config from a file path. Files ending in .toml are decoded as
// TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Validate checks config validity
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Bridge.Tool == "" && c.Bridge.Binary == "" {
		return fmt.Errorf("bridge.tool or bridge.binary is required")
	}

	if !slices.Contains(Models, c.Bridge.Model) {
		return fmt.Errorf("model must be one of %s, got %q", strings.Join(Models, ", "), c.Bridge.Model)
	}

	switch c.Bridge.Mode {
	case api.ModeOneShot, api.ModeInteractive:
	default:
		return fmt.Errorf("mode must be oneshot or interactive, got %q", c.Bridge.Mode)
	}

	switch c.Bridge.PromptDelivery {
	case api.DeliveryStdin, api.DeliveryArgument:
	default:
		return fmt.Errorf("prompt_delivery must be stdin or argument, got %q", c.Bridge.PromptDelivery)
	}

	if c.Bridge.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Bridge.Timeout)
	}

	if c.Bridge.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", c.Bridge.EventBuffer)
	}

	if c.Documents.VersionsRetention < 1 {
		return fmt.Errorf("versions_retention must be at least 1, got %d", c.Documents.VersionsRetention)
	}

	if c.Documents.BackupSchedule != "" {
		if _, err := cron.ParseStandard(c.Documents.BackupSchedule); err != nil {
			return fmt.Errorf("invalid backup_schedule %q: %w", c.Documents.BackupSchedule, err)
		}
	}

	return nil
}

// Default returns a config with default values
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		Bind:     DefaultBind,
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataPath(),
		Bridge: BridgeConfig{
			Tool:           DefaultTool,
			Model:          DefaultModel,
			Mode:           DefaultMode,
			PromptDelivery: DefaultPromptDelivery,
			Timeout:        DefaultTimeout,
			EventBuffer:    DefaultEventBuffer,
			ReplayBuffer:   DefaultReplayBuffer,
		},
		Documents: DocumentsConfig{
			Language:          DefaultLanguage,
			VersionsRetention: DefaultVersionsRetention,
			BackupSchedule:    DefaultBackupSchedule,
			BackupBatch:       DefaultBackupBatch,
		},
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// HistoryDir is where finished sessions are recorded.
func (c *Config) HistoryDir() string { return filepath.Join(c.DataDir, "history") }

// DocumentsDir is the default target of save-as.
func (c *Config) DocumentsDir() string { return filepath.Join(c.DataDir, "documents") }

// RecentDBPath is the sqlite file backing the recent files index.
func (c *Config) RecentDBPath() string { return filepath.Join(c.DataDir, "recent.db") }

// DefaultDataPath returns the default data directory.
// Uses CLAREZA_ROOT env var if set, otherwise ~/.clareza
func DefaultDataPath() string {
	if root := os.Getenv("CLAREZA_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".clareza")
}
