package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// ErrMissingCredential is returned by Validate when no OpenAI API key is set.
var ErrMissingCredential = errors.New("OpenAI API key is not set")

// Config represents the application configuration
type Config struct {
	OpenAI    OpenAIConfig    `toml:"openai"`
	Agent     AgentConfig     `toml:"agent"`
	Search    SearchConfig    `toml:"search"`
	Market    MarketConfig    `toml:"market"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type OpenAIConfig struct {
	APIKey        string `toml:"api_key"`
	AssistantID   string `toml:"assistant_id"`
	AssistantName string `toml:"assistant_name"`
	BaseURL       string `toml:"base_url"`
	Model         string `toml:"model"`
}

type AgentConfig struct {
	PollInterval    time.Duration `toml:"poll_interval"`
	MaxPollAttempts int           `toml:"max_poll_attempts"`
	TurnTimeout     time.Duration `toml:"turn_timeout"`
	Debug           bool          `toml:"debug"`
}

type SearchConfig struct {
	Endpoint   string        `toml:"endpoint"`
	Delay      time.Duration `toml:"delay"`
	MaxResults int           `toml:"max_results"`
}

type MarketConfig struct {
	BaseURL      string `toml:"base_url"`
	HistoryRange string `toml:"history_range"`
	UserAgent    string `toml:"user_agent"`
}

type TelemetryConfig struct {
	Enabled      bool   `toml:"enabled"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			AssistantName: "AssistantGPT",
			Model:         "gpt-4o-mini",
		},
		Agent: AgentConfig{
			PollInterval:    500 * time.Millisecond,
			MaxPollAttempts: 240,
			TurnTimeout:     3 * time.Minute,
		},
		Search: SearchConfig{
			Endpoint:   "https://html.duckduckgo.com/html/",
			Delay:      5 * time.Second,
			MaxResults: 5,
		},
		Market: MarketConfig{
			BaseURL:      "https://query2.finance.yahoo.com",
			HistoryRange: "3mo",
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "assistantgpt",
		},
	}
}

// DefaultPaths lists config locations in lookup order (following XDG conventions)
func DefaultPaths() []string {
	return []string{
		"./config.toml", // Current directory (for development)
		filepath.Join(os.Getenv("HOME"), ".config", "assistantgpt", "config.toml"),
		"/etc/assistantgpt/config.toml",
	}
}

// LoadConfig loads configuration from the default locations with fallback to defaults
func LoadConfig() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config, loadedPath, err := LoadConfigFrom(DefaultPaths()...)
	if err != nil {
		return nil, err
	}
	if loadedPath == "" {
		fmt.Println("⚠️  No config file found. Using default settings.")
		fmt.Println("   Set OPENAI_API_KEY or add it to ~/.config/assistantgpt/config.toml:")
		fmt.Println("     [openai]")
		fmt.Println("     api_key = \"sk-...\"")
	} else {
		fmt.Printf("✓ Loaded config from: %s\n", loadedPath)
	}
	return config, nil
}

// LoadConfigFrom decodes the first existing file in paths over the defaults and
// applies environment overrides. It returns the path it loaded, or "" if none.
func LoadConfigFrom(paths ...string) (*Config, string, error) {
	config := DefaultConfig()

	var loadedPath string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, config); err != nil {
				return nil, "", fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			loadedPath = path
			break
		}
	}

	config.applyEnv()
	return config, loadedPath, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if id := os.Getenv("OPENAI_ASSISTANT_ID"); id != "" {
		c.OpenAI.AssistantID = id
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.OpenAI.BaseURL = url
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Agent.Debug = true
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Telemetry.OTLPEndpoint = endpoint
		c.Telemetry.Enabled = true
	}
}

// Validate reports whether the configuration is usable for remote calls.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return ErrMissingCredential
	}
	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive, got %s", c.Agent.PollInterval)
	}
	if c.Agent.MaxPollAttempts <= 0 {
		return fmt.Errorf("agent.max_poll_attempts must be positive, got %d", c.Agent.MaxPollAttempts)
	}
	return nil
}
