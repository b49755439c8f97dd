package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Config holds all DroidPilot configuration.
type Config struct {
	DBPath    string           `yaml:"db_path"`
	Listen    string           `yaml:"listen"`
	User      string           `yaml:"user"`
	Device    DeviceConfig     `yaml:"device"`
	Providers []ProviderConfig `yaml:"providers"`
	Router    RouterConfig     `yaml:"router"`
	Cache     CacheConfig      `yaml:"cache"`
	History   HistoryConfig    `yaml:"history"`
	Budget    BudgetConfig     `yaml:"budget"`
	Agent     AgentConfig      `yaml:"agent"`
}

// DeviceConfig selects the target Android device.
type DeviceConfig struct {
	Serial        string `yaml:"serial"`
	ADBPath       string `yaml:"adb_path"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// ProviderConfig defines an upstream OpenAI-compatible model provider.
type ProviderConfig struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// RouterConfig defines model routing and fallback chains.
type RouterConfig struct {
	Routes []RouteConfig `yaml:"routes"`
}

// RouteConfig maps a model alias to an ordered list of targets.
type RouteConfig struct {
	Model   string        `yaml:"model"`
	Targets []RouteTarget `yaml:"targets"`
}

// RouteTarget identifies a specific provider and model in a fallback chain.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// CacheConfig controls the semantic response cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	HistoryWindow int           `yaml:"history_window"`
}

// HistoryConfig controls conversation history persistence.
type HistoryConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// BudgetConfig controls token budget enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// AgentConfig controls the decision loop.
type AgentConfig struct {
	Model        string `yaml:"model"`
	MaxSteps     int    `yaml:"max_steps"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "droidpilot.db",
		Listen: ":8087",
		User:   "default",
		Device: DeviceConfig{
			ADBPath:       "adb",
			ScreenshotDir: "ss",
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           24 * time.Hour,
			MaxEntries:    10000,
			HistoryWindow: 5,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
		Budget: BudgetConfig{
			Enabled: false,
		},
		Agent: AgentConfig{
			Model:    "gemma3:12b",
			MaxSteps: 15,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
