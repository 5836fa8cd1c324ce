// ABOUTME: Configuration loading and parsing for the SolidityScan MCP server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Directory DirectoryConfig `yaml:"directory"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Dev enables development mode: internal error detail is included in
	// error responses.
	Dev bool `yaml:"dev"`
}

// ServerConfig holds the listener configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// DisableStreaming forces plain buffered HTTP sessions; GET stream
	// resumption is rejected. Intended for reverse proxies that buffer
	// responses and break SSE.
	DisableStreaming bool `yaml:"disable_streaming"`

	// SSEKeepAlive is the comment-ping interval on idle SSE streams.
	SSEKeepAlive    time.Duration `yaml:"-"`
	SSEKeepAliveRaw string        `yaml:"sse_keep_alive"`

	// EventLogSize caps the per-session outbound event log used for
	// Last-Event-ID stream resumption.
	EventLogSize int `yaml:"event_log_size"`
}

// APIConfig holds the SolidityScan API client configuration.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`

	// Key is the fallback API key used when a request carries none.
	Key string `yaml:"key"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// DirectoryConfig holds the platform/chain directory fetch configuration.
type DirectoryConfig struct {
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// DatabaseConfig holds the scan history database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a configuration that works with no config file present.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:     "0.0.0.0:8080",
			SSEKeepAlive: 30 * time.Second,
			EventLogSize: 256,
		},
		API: APIConfig{
			BaseURL: "https://api.solidityscan.com",
			Key:     os.Getenv("SOLIDITYSCAN_API_KEY"),
			Timeout: 120 * time.Second,
		},
		Directory: DirectoryConfig{
			URL:     "https://api.solidityscan.com/api-get-platform-chain-ids/",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A missing file is not an error: defaults are returned so the server can run
// with zero configuration. Environment variables in the format ${VAR_NAME}
// are expanded.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. If the environment variable is not set, it is replaced with
// an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Directory.URL == "" {
		return fmt.Errorf("directory.url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.API.TimeoutRaw != "" {
		cfg.API.Timeout, err = time.ParseDuration(cfg.API.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing api.timeout %q: %w", cfg.API.TimeoutRaw, err)
		}
	}

	if cfg.Directory.TimeoutRaw != "" {
		cfg.Directory.Timeout, err = time.ParseDuration(cfg.Directory.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing directory.timeout %q: %w", cfg.Directory.TimeoutRaw, err)
		}
	}

	if cfg.Server.SSEKeepAliveRaw != "" {
		cfg.Server.SSEKeepAlive, err = time.ParseDuration(cfg.Server.SSEKeepAliveRaw)
		if err != nil {
			return fmt.Errorf("parsing server.sse_keep_alive %q: %w", cfg.Server.SSEKeepAliveRaw, err)
		}
	}

	return nil
}
