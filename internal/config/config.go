// Package config loads the hub's configuration from compiled-in defaults,
// an optional TOML file, and environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the Memory-and-Reasoning Hub.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Transport  TransportConfig  `toml:"transport"`
	Graph      GraphConfig      `toml:"graph"`
	Notebook   NotebookConfig   `toml:"notebook"`
	Model      ModelConfig      `toml:"model"`
	Governance GovernanceConfig `toml:"governance"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig holds hub metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig controls which transport(s) the hub exposes.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port. Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address. Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins.
	CORSOrigins string `toml:"cors_origins"`
	// WSPath is the path the WebSocket endpoint is mounted at.
	WSPath string `toml:"ws_path"`
	// BearerToken, if set, is required as a bearer token on every HTTP/WS request.
	BearerToken string `toml:"bearer_token"`
	// DrainTimeoutSeconds bounds graceful shutdown.
	DrainTimeoutSeconds int `toml:"drain_timeout_seconds"`
}

// GraphConfig holds property-graph backend connection details.
type GraphConfig struct {
	URI                  string `toml:"uri"`
	Username             string `toml:"username"`
	Password             string `toml:"password"`
	Database             string `toml:"database"`
	MaxPoolSize          int    `toml:"max_pool_size"`
	RetryTimeMs          int    `toml:"retry_time_ms"`
	AcquisitionTimeoutMs int    `toml:"acquisition_timeout_ms"`
	ConnectedCap         int    `toml:"connected_cap"`
}

// NotebookConfig holds the notebook vault location.
type NotebookConfig struct {
	VaultRoot  string `toml:"vault_root"`
	LogsFolder string `toml:"logs_folder"`
}

// ModelConfig holds the local model runtime routing table.
type ModelConfig struct {
	Host            string            `toml:"host"`
	Port            string            `toml:"port"`
	TimeoutMs       int               `toml:"timeout_ms"`
	Retries         int               `toml:"retries"`
	InventoryTTLSec int               `toml:"inventory_ttl_seconds"`
	Fallback        string            `toml:"fallback"`
	ClassDefaults   map[string]string `toml:"class_defaults"`
}

// GovernanceConfig holds the Omega middleware policy knobs.
type GovernanceConfig struct {
	EnforceLogging   bool `toml:"enforce_logging"`
	BlockOnFailure   bool `toml:"block_on_failure"`
	RequireTimestamp bool `toml:"require_timestamp"`
	RequireSource    bool `toml:"require_source"`
	RequireAction    bool `toml:"require_action"`
	ISO8601Strict    bool `toml:"iso8601_strict"`
	ValidateSchema   bool `toml:"validate_schema"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Load creates a Config by reading from a TOML config file and environment
// variables.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. HUB_CONFIG environment variable
//  3. ./hub.toml (current directory)
//  4. ~/.config/hub/hub.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:    "memoryhub",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:                "stdio",
			Port:                "8090",
			Host:                "0.0.0.0",
			CORSOrigins:         "*",
			WSPath:              "/ws",
			DrainTimeoutSeconds: 30,
		},
		Graph: GraphConfig{
			URI:                  "bolt://localhost:7687",
			Username:             "neo4j",
			Database:             "neo4j",
			MaxPoolSize:          50,
			RetryTimeMs:          30000,
			AcquisitionTimeoutMs: 60000,
			ConnectedCap:         500,
		},
		Notebook: NotebookConfig{
			VaultRoot:  "./vault",
			LogsFolder: "logs",
		},
		Model: ModelConfig{
			Host:            "localhost",
			Port:            "11434",
			TimeoutMs:       120000,
			Retries:         3,
			InventoryTTLSec: 300,
			Fallback:        "llama-fallback",
			ClassDefaults: map[string]string{
				"reasoning": "qwq-reasoning",
				"coding":    "qwen-coder",
				"vision":    "llava-vision",
				"chat":      "llama-chat",
				"embedding": "nomic-embed",
				"general":   "llama-chat",
			},
		},
		Governance: GovernanceConfig{
			EnforceLogging:   true,
			BlockOnFailure:   true,
			RequireTimestamp: true,
			RequireSource:    true,
			RequireAction:    true,
			ISO8601Strict:    true,
			ValidateSchema:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("HUB_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("hub.toml"); err == nil {
		return "hub.toml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/hub/hub.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("HUB_GRAPH_URI", &c.Graph.URI)
	envOverride("HUB_GRAPH_USER", &c.Graph.Username)
	envOverride("HUB_GRAPH_PASSWORD", &c.Graph.Password)
	envOverride("HUB_GRAPH_DATABASE", &c.Graph.Database)
	envOverrideInt("HUB_GRAPH_POOL_SIZE", &c.Graph.MaxPoolSize)
	envOverrideInt("HUB_GRAPH_RETRY_TIME_MS", &c.Graph.RetryTimeMs)
	envOverrideInt("HUB_GRAPH_ACQUISITION_TIMEOUT_MS", &c.Graph.AcquisitionTimeoutMs)

	envOverride("HUB_NOTEBOOK_VAULT_ROOT", &c.Notebook.VaultRoot)
	envOverride("HUB_NOTEBOOK_LOGS_FOLDER", &c.Notebook.LogsFolder)

	envOverride("HUB_MODEL_HOST", &c.Model.Host)
	envOverride("HUB_MODEL_PORT", &c.Model.Port)
	envOverrideInt("HUB_MODEL_TIMEOUT_MS", &c.Model.TimeoutMs)
	envOverrideInt("HUB_MODEL_RETRIES", &c.Model.Retries)
	envOverride("HUB_MODEL_FALLBACK", &c.Model.Fallback)
	for class, key := range map[string]string{
		"reasoning": "HUB_MODEL_REASONING",
		"coding":    "HUB_MODEL_CODING",
		"vision":    "HUB_MODEL_VISION",
		"chat":      "HUB_MODEL_CHAT",
		"embedding": "HUB_MODEL_EMBEDDING",
		"general":   "HUB_MODEL_GENERAL",
	} {
		if v := os.Getenv(key); v != "" {
			if c.Model.ClassDefaults == nil {
				c.Model.ClassDefaults = make(map[string]string)
			}
			c.Model.ClassDefaults[class] = v
		}
	}

	envOverrideBool("HUB_GOVERNANCE_ENFORCE", &c.Governance.EnforceLogging)
	envOverrideBool("HUB_GOVERNANCE_BLOCK_ON_FAILURE", &c.Governance.BlockOnFailure)

	envOverride("HUB_TRANSPORT", &c.Transport.Mode)
	envOverride("HUB_PORT", &c.Transport.Port)
	envOverride("HUB_HOST", &c.Transport.Host)
	envOverride("HUB_CORS_ORIGINS", &c.Transport.CORSOrigins)
	envOverride("HUB_BEARER_TOKEN", &c.Transport.BearerToken)

	envOverride("HUB_LOG_LEVEL", &c.Log.Level)
}

// Validate checks that required fields are present, mirroring the
// stdio-vs-http distinction: only the multi-client transport needs a token.
func (c *Config) Validate() error {
	if c.Graph.Password == "" {
		return fmt.Errorf("graph password is required: set graph.password in config file, or HUB_GRAPH_PASSWORD env var")
	}

	switch c.Transport.Mode {
	case "stdio":
		// No additional auth is required for a single point-to-point stream.
	case "http":
		if c.Transport.BearerToken == "" {
			return fmt.Errorf("bearer_token is required for http transport: set transport.bearer_token in config file, or HUB_BEARER_TOKEN env var")
		}
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}

	return nil
}

func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			*dst = n
		}
	}
}

func envOverrideBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
