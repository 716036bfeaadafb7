package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig overrides the default limit for requests matching Path and
// Method. A zero Limit or Window leaves the endpoint unlimited.
type EndpointConfig struct {
	Path   string // exact path, "*" segment wildcard, or "/"-terminated prefix; see MatchEndpoint
	Method string
	Limit  int // requests per Window
	Window time.Duration
	Burst  int // defaults to Limit when zero
}

// LoadConfig reads the limiter settings from RATE_LIMIT_* environment variables.
func LoadConfig() *Config {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) *Config {
	env := envReader(getenv)
	if !env.boolean("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    env.integer("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   env.duration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: env.duration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-endpoint limits of the API. Reads
// not listed here fall back to the default limit.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/health", Method: "GET"},

		// Creating or running a job starts crawling and model calls.
		{Path: "/resources/*/jobs", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/jobs/*/run", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},

		// Reviewer decisions only touch the database.
		{Path: "/jobs/*/approve", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
		{Path: "/jobs/*/reject", Method: "POST", Limit: 120, Window: time.Minute, Burst: 20},
	}
}

// envReader parses typed values, falling back to a default when a variable
// is unset or malformed.
type envReader func(string) string

func (e envReader) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e(key)); err == nil {
		return n
	}
	return fallback
}

func (e envReader) boolean(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(e(key)); err == nil {
		return b
	}
	return fallback
}

func (e envReader) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e(key)); err == nil {
		return d
	}
	return fallback
}

// parseIPList turns a comma-separated list into a set, skipping blanks.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
