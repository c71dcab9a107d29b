package configuration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "OPENAI_ASSISTANT_ID", "OPENAI_BASE_URL", "DEBUG", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigFrom_DefaultsWhenNoFile(t *testing.T) {
	clearEnv(t)

	cfg, path, err := LoadConfigFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if path != "" {
		t.Errorf("loaded path = %q, want empty", path)
	}
	if cfg.Agent.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want 500ms", cfg.Agent.PollInterval)
	}
	if cfg.Search.Delay != 5*time.Second {
		t.Errorf("Search.Delay = %s, want 5s", cfg.Search.Delay)
	}
	if cfg.Market.HistoryRange != "3mo" {
		t.Errorf("HistoryRange = %q, want 3mo", cfg.Market.HistoryRange)
	}
	if !errors.Is(cfg.Validate(), ErrMissingCredential) {
		t.Errorf("Validate() = %v, want ErrMissingCredential", cfg.Validate())
	}
}

func TestLoadConfigFrom_FileThenEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[openai]
api_key = "sk-file"
assistant_id = "asst_file"

[agent]
poll_interval = "250ms"
max_poll_attempts = 10

[search]
delay = "1s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if loaded != path {
		t.Errorf("loaded = %q, want %q", loaded, path)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Errorf("APIKey = %q, want env override", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.AssistantID != "asst_file" {
		t.Errorf("AssistantID = %q, want asst_file", cfg.OpenAI.AssistantID)
	}
	if cfg.Agent.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %s, want 250ms", cfg.Agent.PollInterval)
	}
	if cfg.Agent.MaxPollAttempts != 10 {
		t.Errorf("MaxPollAttempts = %d, want 10", cfg.Agent.MaxPollAttempts)
	}
	if cfg.Search.Delay != time.Second {
		t.Errorf("Search.Delay = %s, want 1s", cfg.Search.Delay)
	}
	// untouched sections keep their defaults
	if cfg.Search.MaxResults != 5 {
		t.Errorf("Search.MaxResults = %d, want 5", cfg.Search.MaxResults)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestLoadConfigFrom_InvalidFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[openai\napi_key="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadConfigFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_PollSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenAI.APIKey = "sk-test"

	cfg.Agent.MaxPollAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero max_poll_attempts")
	}

	cfg.Agent.MaxPollAttempts = 1
	cfg.Agent.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero poll_interval")
	}
}

func TestApplyEnv_Telemetry(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	cfg, _, err := LoadConfigFrom()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
		t.Errorf("telemetry = %+v, want enabled with endpoint", cfg.Telemetry)
	}
}
