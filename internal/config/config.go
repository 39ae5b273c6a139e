// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRelayURL is the public relay endpoint used when none is configured.
const DefaultRelayURL = "wss://relay.clasp.chat"

type Config struct {
	// RelayURL is the websocket endpoint of the pub-sub relay.
	RelayURL string

	// DataDir holds the identity file and the message cache database.
	DataDir string

	// DisplayName is shown to peers. Blank means "anonymous".
	DisplayName string

	// LogFile, when set, routes logs to a rotating file instead of the
	// terminal.
	LogFile string

	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string
}

// LoadFromEnv reads CLASPSYNC_* variables and fills in defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		RelayURL:    os.Getenv("CLASPSYNC_RELAY_URL"),
		DataDir:     os.Getenv("CLASPSYNC_DATA_DIR"),
		DisplayName: os.Getenv("CLASPSYNC_DISPLAY_NAME"),
		LogFile:     os.Getenv("CLASPSYNC_LOG_FILE"),
		LogLevel:    os.Getenv("CLASPSYNC_LOG_LEVEL"),
	}
	if cfg.RelayURL == "" {
		cfg.RelayURL = DefaultRelayURL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve config dir: %w", err)
		}
		cfg.DataDir = filepath.Join(base, "claspsync")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !strings.HasPrefix(c.RelayURL, "ws://") && !strings.HasPrefix(c.RelayURL, "wss://") {
		return fmt.Errorf("relay url %q must use the ws or wss scheme", c.RelayURL)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// IdentityPath is where the stable client id lives.
func (c Config) IdentityPath() string {
	return filepath.Join(c.DataDir, "identity.json")
}
