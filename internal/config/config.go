// Package config handles loading and validation of the host agent configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultDataDirWindows is the per-machine data directory on Windows.
	DefaultDataDirWindows = `C:\ProgramData\Fathom`

	// DefaultDataDirUnix is the per-machine data directory on Linux/macOS.
	DefaultDataDirUnix = "/etc/fathom"

	// configFileName is the file name used for both the alongside-executable
	// defaults file and the per-machine override file.
	configFileName = "agent.yaml"
)

// Config holds all configuration for the host agent.
type Config struct {
	// ConsoleURL is the base URL of the console's WebSocket endpoint,
	// e.g. "wss://console.example.com". The agent appends "/ws/agent".
	ConsoleURL string `mapstructure:"console_url"`

	// AgentID identifies this agent to the console. Immutable for the
	// life of the process.
	AgentID string `mapstructure:"agent_id"`

	// AgentToken authenticates this agent to the console.
	AgentToken string `mapstructure:"agent_token"`

	// Hostname is reported in AUTH. Resolved from the OS if empty.
	Hostname string `mapstructure:"hostname"`

	// OSInfo is reported in AUTH. Resolved from runtime.GOOS/GOARCH if empty.
	OSInfo string `mapstructure:"os_info"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogPath is the file the agent appends structured logs to, in addition
	// to stdout. Empty disables file logging.
	LogPath string `mapstructure:"log_path"`

	// DataDir is the per-machine data directory resolved for this OS. Not
	// itself a config key.
	DataDir string `mapstructure:"-"`
}

// defaultDataDir returns the per-machine data directory for the current OS.
func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		return DefaultDataDirWindows
	}
	return DefaultDataDirUnix
}

// Load reads configuration in three layers, each overriding the last:
//  1. An "agent.yaml" file next to the running executable, if present.
//  2. An "agent.yaml" override file in the per-machine data directory
//     (or configPath, if given).
//  3. Environment variables prefixed FATHOM_.
//
// A missing file at either layer 1 or 2 is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("FATHOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := defaultDataDir()
	overridePath := configPath
	if overridePath == "" {
		overridePath = filepath.Join(dataDir, configFileName)
	}

	// Layer 1: defaults alongside the executable.
	if exePath, err := os.Executable(); err == nil {
		defaultsPath := filepath.Join(filepath.Dir(exePath), configFileName)
		if _, statErr := os.Stat(defaultsPath); statErr == nil {
			v.SetConfigFile(defaultsPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading defaults config %s: %w", defaultsPath, err)
			}
		}
	}

	// Layer 2: per-machine override file, merged on top of layer 1 so its
	// values win on conflicting keys.
	if _, err := os.Stat(overridePath); err == nil {
		v.SetConfigFile(overridePath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading override config %s: %w", overridePath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.DataDir = dataDir

	if cfg.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("getting hostname: %w", err)
		}
		cfg.Hostname = hostname
	}

	if cfg.OSInfo == "" {
		cfg.OSInfo = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are present.
func (c *Config) Validate() error {
	if c.ConsoleURL == "" {
		return fmt.Errorf("console_url is required")
	}
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if c.AgentToken == "" {
		return fmt.Errorf("agent_token is required")
	}
	return nil
}
