package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "GITVIEW_GITHUB_TOKEN"
	// EnvDatabaseDriver overrides database_driver
	EnvDatabaseDriver = "GITVIEW_DATABASE_DRIVER"
	// EnvDatabaseURL overrides database_url
	EnvDatabaseURL = "GITVIEW_DATABASE_URL"
	// EnvListenAddr overrides listen_addr
	EnvListenAddr = "GITVIEW_LISTEN_ADDR"
	// EnvCacheTTL overrides cache_ttl
	EnvCacheTTL = "GITVIEW_CACHE_TTL"
	// EnvLogLevel overrides log_level
	EnvLogLevel = "GITVIEW_LOG_LEVEL"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
	DriverMongoDB  = "mongodb"
)

// Duration is a time.Duration written as a Go duration string ("90s", "24h")
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string is zero.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Config represents the application configuration
type Config struct {
	// GitHub API token (optional, can be set via GITVIEW_GITHUB_TOKEN env var).
	// Without it pinned items are not fetched.
	GitHubToken string `json:"github_token" toml:"github_token"`

	// Base URLs of a GitHub-compatible API, empty for github.com
	GitHubAPIURL     string `json:"github_api_url,omitempty" toml:"github_api_url,omitempty"`
	GitHubGraphQLURL string `json:"github_graphql_url,omitempty" toml:"github_graphql_url,omitempty"`

	// One of sqlite3, pgx or mongodb
	DatabaseDriver string `json:"database_driver" toml:"database_driver"`
	// Path to the SQLite database file
	DatabasePath string `json:"database_path" toml:"database_path"`
	// Connection URL for pgx and mongodb
	DatabaseURL string `json:"database_url,omitempty" toml:"database_url,omitempty"`
	// Database name used with mongodb
	MongoDatabase string `json:"mongo_database,omitempty" toml:"mongo_database,omitempty"`
	// Connection attempts at startup before the store is treated as offline
	StoreConnectAttempts int `json:"store_connect_attempts" toml:"store_connect_attempts"`

	ListenAddr string `json:"listen_addr" toml:"listen_addr"`
	// Maximum age of a served analytics record, 0 keeps records forever
	CacheTTL        Duration `json:"cache_ttl" toml:"cache_ttl"`
	ShutdownTimeout Duration `json:"shutdown_timeout" toml:"shutdown_timeout"`
	RequestTimeout  Duration `json:"request_timeout" toml:"request_timeout"`

	LogLevel  string `json:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" toml:"log_format"`

	// Usernames to preload with -warm
	WarmUsernames []string `json:"warm_usernames,omitempty" toml:"warm_usernames,omitempty"`
	WarmWorkers   int      `json:"warm_workers,omitempty" toml:"warm_workers,omitempty"`
}

// Default returns the configuration used for unset keys
func Default() *Config {
	return &Config{
		DatabaseDriver:       DriverSQLite,
		DatabasePath:         "gitview.db",
		MongoDatabase:        "gitview",
		StoreConnectAttempts: 3,
		ListenAddr:           ":8080",
		ShutdownTimeout:      Duration(10 * time.Second),
		RequestTimeout:       Duration(60 * time.Second),
		LogLevel:             "info",
		LogFormat:            "text",
		WarmWorkers:          4,
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig loads the configuration from a JSON or TOML file, then applies
// a .env file next to it and GITVIEW_ environment overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Existing environment variables win over .env entries
	configDir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.fillDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Make database path absolute if it's relative
	if !filepath.IsAbs(config.DatabasePath) {
		config.DatabasePath = filepath.Join(configDir, config.DatabasePath)
	}

	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvGithubToken); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		c.DatabaseDriver = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		if err := c.CacheTTL.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
	}
	return nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.DatabaseDriver == "" {
		c.DatabaseDriver = d.DatabaseDriver
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = d.MongoDatabase
	}
	if c.StoreConnectAttempts < 1 {
		c.StoreConnectAttempts = 1
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
	if c.WarmWorkers < 1 {
		c.WarmWorkers = d.WarmWorkers
	}
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres, DriverMongoDB:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for driver %s", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("unsupported database_driver %q", c.DatabaseDriver)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q", c.LogFormat)
	}

	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	return nil
}

// DSN is the data source name for the configured SQL driver
func (c *Config) DSN() string {
	if c.DatabaseDriver == DriverSQLite {
		return c.DatabasePath
	}
	return c.DatabaseURL
}

// String describes the config without secrets
func (c *Config) String() string {
	token := "unset"
	if c.GitHubToken != "" {
		token = "set (" + strconv.Itoa(len(c.GitHubToken)) + " chars)"
	}
	return fmt.Sprintf("driver=%s listen=%s cache_ttl=%s token=%s",
		c.DatabaseDriver, c.ListenAddr, time.Duration(c.CacheTTL), token)
}

// SaveConfig saves the configuration to a JSON or TOML file
func SaveConfig(config *Config, path string) error {
	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	// Check if the file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := Default()
	config.WarmUsernames = []string{"octocat"}

	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}
