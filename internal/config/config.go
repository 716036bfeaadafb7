// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the JSON configuration file. All fields are optional; missing
// values come from the environment, CLI flags or Defaults.
type Config struct {
	// Storage
	DatabaseURL string `json:"database_url,omitempty"`

	// Text generation
	LLMProvider string `json:"llm_provider,omitempty"` // gemini or openai
	LLMModel    string `json:"llm_model,omitempty"`    // overrides the provider's standard model
	LLMBaseURL  string `json:"llm_base_url,omitempty"` // OpenAI-compatible endpoint
	APIKey      string `json:"api_key,omitempty"`

	// Sources
	GitHubToken   string            `json:"github_token,omitempty"`
	UseBrowser    bool              `json:"use_browser,omitempty"`
	MaxTextLength int               `json:"max_text_length,omitempty"`
	Delays        map[string]string `json:"delays,omitempty"` // service -> duration, e.g. {"github": "2s"}

	// Analysis and diff
	Threshold       float64 `json:"threshold,omitempty"`
	BreakingBelow   float64 `json:"breaking_below,omitempty"`
	MaxInputChars   int     `json:"max_input_chars,omitempty"`
	MinContentChars int     `json:"min_content_chars,omitempty"`

	// Screenshots; disabled when empty
	ScreenshotDir string `json:"screenshot_dir,omitempty"`

	// Batches
	Parallelism      int    `json:"parallelism,omitempty"`
	StaleAfter       string `json:"stale_after,omitempty"`
	ScheduleInterval string `json:"schedule_interval,omitempty"`
	BatchSize        int    `json:"batch_size,omitempty"`
	AbandonAfter     string `json:"abandon_after,omitempty"` // in-flight jobs idle this long are failed on startup

	// Server
	Port int `json:"port,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// Defaults returns the built-in defaults.
func Defaults() Config {
	return Config{
		LLMProvider:      "gemini",
		MaxTextLength:    20000,
		Threshold:        0.7,
		BreakingBelow:    0.5,
		MaxInputChars:    12000,
		MinContentChars:  200,
		Parallelism:      4,
		StaleAfter:       "168h",
		ScheduleInterval: "1h",
		AbandonAfter:     "1h",
		Port:             8080,
		Delays: map[string]string{
			"web":        "500ms",
			"github":     "1s",
			"llm":        "2s",
			"screenshot": "1s",
		},
	}
}

// LoadConfig loads configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills empty secrets and connection settings from environment
// variables. Call godotenv.Load first to pick up a .env file.
func (c *Config) ApplyEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.LLMProvider == "" {
		c.LLMProvider = os.Getenv("LLM_PROVIDER")
	}
	if c.APIKey == "" {
		switch strings.ToLower(c.LLMProvider) {
		case "openai":
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.LLMBaseURL == "" {
		c.LLMBaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if c.GitHubToken == "" {
		c.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case "", "gemini", "openai":
	default:
		return fmt.Errorf("config error: unsupported 'llm_provider' %q", c.LLMProvider)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("config error: 'threshold' must be within [0, 1]")
	}
	if c.BreakingBelow < 0 || c.BreakingBelow > 1 {
		return fmt.Errorf("config error: 'breaking_below' must be within [0, 1]")
	}
	if c.Threshold > 0 && c.BreakingBelow >= c.Threshold {
		return fmt.Errorf("config error: 'breaking_below' (%.2f) must be below 'threshold' (%.2f)", c.BreakingBelow, c.Threshold)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("config error: 'parallelism' must be non-negative")
	}
	if c.MaxTextLength < 0 || c.MaxInputChars < 0 || c.MinContentChars < 0 || c.BatchSize < 0 {
		return fmt.Errorf("config error: size limits must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	for name, value := range map[string]string{
		"stale_after":       c.StaleAfter,
		"schedule_interval": c.ScheduleInterval,
		"abandon_after":     c.AbandonAfter,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("config error: invalid '%s': %w", name, err)
		}
	}
	for service, value := range c.Delays {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("config error: invalid delay for %s: %w", service, err)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.LLMProvider == "" {
		result.LLMProvider = defaults.LLMProvider
	}
	if result.LLMModel == "" {
		result.LLMModel = defaults.LLMModel
	}
	if result.LLMBaseURL == "" {
		result.LLMBaseURL = defaults.LLMBaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.GitHubToken == "" {
		result.GitHubToken = defaults.GitHubToken
	}
	if result.ScreenshotDir == "" {
		result.ScreenshotDir = defaults.ScreenshotDir
	}
	if result.StaleAfter == "" {
		result.StaleAfter = defaults.StaleAfter
	}
	if result.ScheduleInterval == "" {
		result.ScheduleInterval = defaults.ScheduleInterval
	}
	if result.AbandonAfter == "" {
		result.AbandonAfter = defaults.AbandonAfter
	}

	if result.MaxTextLength == 0 {
		result.MaxTextLength = defaults.MaxTextLength
	}
	if result.MaxInputChars == 0 {
		result.MaxInputChars = defaults.MaxInputChars
	}
	if result.MinContentChars == 0 {
		result.MinContentChars = defaults.MinContentChars
	}
	if result.Parallelism == 0 {
		result.Parallelism = defaults.Parallelism
	}
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	if result.Threshold == 0 {
		result.Threshold = defaults.Threshold
	}
	if result.BreakingBelow == 0 {
		result.BreakingBelow = defaults.BreakingBelow
	}

	merged := make(map[string]string, len(defaults.Delays)+len(result.Delays))
	for k, v := range defaults.Delays {
		merged[k] = v
	}
	for k, v := range result.Delays {
		merged[k] = v
	}
	result.Delays = merged

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// DelayDurations parses Delays. Invalid entries are skipped; Validate reports them.
func (c *Config) DelayDurations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.Delays))
	for service, value := range c.Delays {
		if d, err := time.ParseDuration(value); err == nil {
			out[service] = d
		}
	}
	return out
}

// StaleAfterDuration parses StaleAfter, returning zero when unset or invalid.
func (c *Config) StaleAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.StaleAfter)
	return d
}

// ScheduleIntervalDuration parses ScheduleInterval, returning zero when unset or invalid.
func (c *Config) ScheduleIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.ScheduleInterval)
	return d
}

// AbandonAfterDuration parses AbandonAfter, returning zero when unset or invalid.
func (c *Config) AbandonAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.AbandonAfter)
	return d
}
