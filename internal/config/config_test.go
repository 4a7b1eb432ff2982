package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name:       "defaults pass",
			modifyFunc: func(c *Config) {},
		},
		{
			name: "negative temperature fails",
			modifyFunc: func(c *Config) {
				c.Temperature = -0.5
			},
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name: "request timeout > 600 fails",
			modifyFunc: func(c *Config) {
				c.RequestTimeoutSeconds = 9999
			},
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name: "unknown storage fails",
			modifyFunc: func(c *Config) {
				c.Storage = "redis"
			},
			expectError: true,
			errorString: "storage must be",
		},
		{
			name: "debounce longer than interval fails",
			modifyFunc: func(c *Config) {
				c.SampleIntervalMs = 400
				c.DebounceMs = 500
			},
			expectError: true,
			errorString: "debounce_ms",
		},
		{
			name: "too many agent steps fails",
			modifyFunc: func(c *Config) {
				c.MaxAgentSteps = 50
			},
			expectError: true,
			errorString: "max_agent_steps",
		},
		{
			name: "unknown mode fails",
			modifyFunc: func(c *Config) {
				c.DefaultMode = "Plan"
			},
			expectError: true,
			errorString: "default_mode",
		},
		{
			name: "non-http endpoint fails",
			modifyFunc: func(c *Config) {
				c.Endpoint = "localhost:3737"
			},
			expectError: true,
			errorString: "endpoint",
		},
		{
			name: "lowercase mode passes",
			modifyFunc: func(c *Config) {
				c.DefaultMode = "ask"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modifyFunc(&cfg)
			err := cfg.validate()
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Fatalf("expected error containing %q, got %q", tt.errorString, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error but got: %v", err)
			}
		})
	}
}

func TestDefaultsMatchEditorCadence(t *testing.T) {
	t.Setenv("AIRA_CONFIG_DIR", t.TempDir())
	cfg := Default()
	if cfg.SampleInterval().Milliseconds() != 2000 {
		t.Fatalf("sample interval = %s", cfg.SampleInterval())
	}
	if cfg.Debounce().Milliseconds() != 500 {
		t.Fatalf("debounce = %s", cfg.Debounce())
	}
	if cfg.ContextCharLimit != 8000 {
		t.Fatalf("context char limit = %d", cfg.ContextCharLimit)
	}
	if cfg.MaxAgentSteps != 5 {
		t.Fatalf("max agent steps = %d", cfg.MaxAgentSteps)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("model = %q", cfg.Model)
	}
}

func TestLoadUserConfigMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AIRA_CONFIG_DIR", dir)
	t.Setenv("AIRA_CONFIG_PATH", "")
	t.Setenv("AIRA_API_KEY", "sk-env")

	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if cfg.DataDir != filepath.Join(dir, "workspace") {
		t.Fatalf("data dir = %q", cfg.DataDir)
	}
	if cfg.APIKey != "sk-env" {
		t.Fatalf("api key = %q", cfg.APIKey)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	t.Setenv("AIRA_CONFIG_PATH", path)
	t.Setenv("AIRA_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := Default()
	cfg.Storage = StorageSQLite
	cfg.MaxAgentSteps = 3
	cfg.DefaultMode = ModeAsk
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	loaded, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if loaded.Storage != StorageSQLite || loaded.MaxAgentSteps != 3 || loaded.DefaultMode != ModeAsk {
		t.Fatalf("unexpected loaded config: %+v", loaded)
	}
}

func TestSaveDoesNotPersistEnvKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("AIRA_CONFIG_PATH", path)
	t.Setenv("AIRA_API_KEY", "sk-secret")

	cfg := Default()
	cfg.applyEnv()
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Fatalf("env api key leaked into config file")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unterminated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestNormalizeMode(t *testing.T) {
	cases := map[string]string{
		"Agent": ModeAgent,
		"agent": ModeAgent,
		" ASK ": ModeAsk,
		"plan":  "",
		"":      "",
	}
	for in, want := range cases {
		if got := NormalizeMode(in); got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", in, got, want)
		}
	}
}
