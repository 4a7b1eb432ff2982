package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel            = "gpt-4o-mini"
	DefaultBaseURL          = "https://api.openai.com/v1"
	DefaultListenAddr       = "127.0.0.1:3737"
	DefaultContextCharLimit = 8000
	DefaultMaxAgentSteps    = 5
	DefaultSampleIntervalMs = 2000
	DefaultDebounceMs       = 500

	StorageJSON   = "json"
	StorageSQLite = "sqlite"

	ModeAgent = "Agent"
	ModeAsk   = "Ask"
)

// Config captures the tunable runtime settings for the workspace, editors and chat.
type Config struct {
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	APIKey                string  `yaml:"api_key,omitempty"`
	Temperature           float64 `yaml:"temperature"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	ListenAddr            string  `yaml:"listen_addr"`
	Endpoint              string  `yaml:"endpoint"`
	DataDir               string  `yaml:"data_dir"`
	Storage               string  `yaml:"storage"`
	SampleIntervalMs      int     `yaml:"sample_interval_ms"`
	DebounceMs            int     `yaml:"debounce_ms"`
	ContextCharLimit      int     `yaml:"context_char_limit"`
	MaxAgentSteps         int     `yaml:"max_agent_steps"`
	DefaultMode           string  `yaml:"default_mode"`
	DocAppendModelText    bool    `yaml:"doc_append_model_text"`
	ConversationDir       string  `yaml:"conversation_dir"`
	HistoryPath           string  `yaml:"history_path"`
	LogPath               string  `yaml:"log_path"`
	LogMaxSizeMB          int     `yaml:"log_max_size_mb"`
	LogMaxBackups         int     `yaml:"log_max_backups"`
	LogJSON               bool    `yaml:"log_json"`
}

// Default returns a config with every optional value filled in.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadUserConfig loads configuration from ~/.aira/config.yaml.
// Checks AIRA_CONFIG_PATH first. A missing file yields defaults.
func LoadUserConfig() (Config, error) {
	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return Load(configPath)
}

// Load reads the YAML configuration from disk and injects defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the config to AIRA_CONFIG_PATH or the default location.
// The API key is never written back when it came from the environment.
func Save(c Config) error {
	configPath := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if c.APIKey != "" && c.APIKey == envAPIKey() {
		c.APIKey = ""
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = filepath.Join(GetConfigDir(), "workspace")
	}
	if strings.TrimSpace(c.Storage) == "" {
		c.Storage = StorageJSON
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.SampleIntervalMs <= 0 {
		c.SampleIntervalMs = DefaultSampleIntervalMs
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = DefaultDebounceMs
	}
	if c.ContextCharLimit <= 0 {
		c.ContextCharLimit = DefaultContextCharLimit
	}
	if c.MaxAgentSteps <= 0 {
		c.MaxAgentSteps = DefaultMaxAgentSteps
	}
	if strings.TrimSpace(c.DefaultMode) == "" {
		c.DefaultMode = ModeAgent
	}
	if c.ConversationDir == "" {
		c.ConversationDir = filepath.Join(GetConfigDir(), "conversations")
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(GetConfigDir(), ".history")
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(GetConfigDir(), "aira.log")
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 10
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = 3
	}
}

func (c *Config) applyEnv() {
	if c.APIKey == "" {
		c.APIKey = envAPIKey()
	}
}

func envAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("AIRA_API_KEY")); key != "" {
		return key
	}
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func (c Config) validate() error {
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	switch c.Storage {
	case StorageJSON, StorageSQLite:
	default:
		return fmt.Errorf("storage must be %q or %q (got %q)", StorageJSON, StorageSQLite, c.Storage)
	}
	if c.SampleIntervalMs < 100 {
		return fmt.Errorf("sample_interval_ms must be at least 100")
	}
	if c.DebounceMs >= c.SampleIntervalMs {
		return fmt.Errorf("debounce_ms (%d) must be shorter than sample_interval_ms (%d)", c.DebounceMs, c.SampleIntervalMs)
	}
	if c.MaxAgentSteps > 20 {
		return fmt.Errorf("max_agent_steps must be between 1 and 20")
	}
	if NormalizeMode(c.DefaultMode) == "" {
		return fmt.Errorf("default_mode must be %q or %q (got %q)", ModeAgent, ModeAsk, c.DefaultMode)
	}
	if c.Endpoint != "" && !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL")
	}
	return nil
}

// NormalizeMode maps user input onto ModeAgent or ModeAsk, returning "" when unknown.
func NormalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "agent":
		return ModeAgent
	case "ask":
		return ModeAsk
	default:
		return ""
	}
}

// RequestTimeout turns the integer value into a duration for HTTP clients.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SampleInterval is the cadence at which mounted editors are sampled.
func (c Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMs) * time.Millisecond
}

// Debounce is the delay between a detected change and the store write.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// ConfigPath resolves the config file location.
func ConfigPath() string {
	if p := os.Getenv("AIRA_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(GetConfigDir(), "config.yaml")
}

func GetConfigDir() string {
	if configDir := os.Getenv("AIRA_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aira"
	}
	return filepath.Join(home, ".aira")
}
