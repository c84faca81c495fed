// ABOUTME: Configuration loading and parsing for vespucci-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vespucci-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig holds configuration for the hosted language model API
type LLMConfig struct {
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	BaseURL       string  `yaml:"base_url"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	MaxToolRounds int     `yaml:"max_tool_rounds"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// MCPConfig holds configuration for the MCP tool server subprocess
type MCPConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	ConnectTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied by Load when the corresponding field is unset.
const (
	DefaultModel          = "llama-3.3-70b-versatile"
	DefaultBaseURL        = "https://api.groq.com/openai/v1"
	DefaultMaxTokens      = 1000
	DefaultTemperature    = 0.7
	DefaultMaxToolRounds  = 5
	DefaultRequestTimeout = 2 * time.Minute
	DefaultConnectTimeout = 30 * time.Second
	DefaultMCPCommand     = "npx"
)

// DefaultMCPArgs is the MCP server launched when mcp.args is unset.
var DefaultMCPArgs = []string{"-y", "web3-research-mcp@latest"}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in unset optional fields.
func (c *Config) applyDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultBaseURL
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = DefaultMaxTokens
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = DefaultTemperature
	}
	if c.LLM.MaxToolRounds == 0 {
		c.LLM.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.LLM.RequestTimeout == 0 {
		c.LLM.RequestTimeout = DefaultRequestTimeout
	}
	if c.MCP.Command == "" {
		c.MCP.Command = DefaultMCPCommand
	}
	if len(c.MCP.Args) == 0 {
		c.MCP.Args = append([]string(nil), DefaultMCPArgs...)
	}
	if c.MCP.ConnectTimeout == 0 {
		c.MCP.ConnectTimeout = DefaultConnectTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set GROQ_API_KEY and reference it as ${GROQ_API_KEY})")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}

	for _, kv := range c.MCP.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("mcp.env entry %q must be in KEY=VALUE form", kv)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.LLM.RequestTimeoutRaw != "" {
		cfg.LLM.RequestTimeout, err = time.ParseDuration(cfg.LLM.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.LLM.RequestTimeoutRaw, err)
		}
	}

	if cfg.MCP.ConnectTimeoutRaw != "" {
		cfg.MCP.ConnectTimeout, err = time.ParseDuration(cfg.MCP.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.MCP.ConnectTimeoutRaw, err)
		}
	}

	return nil
}
