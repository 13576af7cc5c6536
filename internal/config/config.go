// ABOUTME: Configuration loading and parsing for a11y-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is omitted.
const (
	DefaultGRPCAddr        = "127.0.0.1:50061"
	DefaultHTTPAddr        = "127.0.0.1:8086"
	DefaultKeyEventTimeout = 500 * time.Millisecond
)

// Config represents the complete a11y-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	Inventory InventoryConfig `yaml:"inventory"`
	DBus      DBusConfig      `yaml:"dbus"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the settings database location. ":memory:" keeps
// settings in an in-memory database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BrokerConfig holds accessibility broker tunables
type BrokerConfig struct {
	InitialUser     int           `yaml:"initial_user"`
	KeyEventTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	KeyEventTimeoutRaw string `yaml:"key_event_timeout"`
}

// InventoryConfig points at the directory of service manifests
type InventoryConfig struct {
	ManifestDir string `yaml:"manifest_dir"`
	Watch       bool   `yaml:"watch"`
}

// DBusConfig controls publishing accessibility state on the desktop bus
type DBusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bus     string `yaml:"bus"` // "session" or "system"
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Path returns the config file location.
// Priority: A11Y_CONFIG env var > XDG_CONFIG_HOME/a11y/gateway.yaml > ~/.config/a11y/gateway.yaml
func Path() string {
	if envPath := os.Getenv("A11Y_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "a11y", "gateway.yaml")
}

// DataDir returns the default data directory.
// Priority: XDG_DATA_HOME/a11y > ~/.local/share/a11y
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "a11y")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from raw YAML.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = DefaultGRPCAddr
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Broker.KeyEventTimeout == 0 {
		c.Broker.KeyEventTimeout = DefaultKeyEventTimeout
	}
	if c.DBus.Bus == "" {
		c.DBus.Bus = "session"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Broker.InitialUser < 0 {
		return fmt.Errorf("broker.initial_user must not be negative, got %d", c.Broker.InitialUser)
	}

	if c.Broker.KeyEventTimeout < 0 {
		return fmt.Errorf("broker.key_event_timeout must be positive, got %s", c.Broker.KeyEventTimeout)
	}

	if c.Inventory.Watch && c.Inventory.ManifestDir == "" {
		return fmt.Errorf("inventory.manifest_dir is required when inventory.watch is enabled")
	}

	switch c.DBus.Bus {
	case "", "session", "system":
	default:
		return fmt.Errorf("dbus.bus must be session or system, got %q", c.DBus.Bus)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Broker.KeyEventTimeoutRaw != "" {
		cfg.Broker.KeyEventTimeout, err = time.ParseDuration(cfg.Broker.KeyEventTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing key_event_timeout %q: %w", cfg.Broker.KeyEventTimeoutRaw, err)
		}
	}

	return nil
}
