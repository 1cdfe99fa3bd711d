package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hay-kot/deskbus/internal/core/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Broker overrides the websocket base URL derived from the listen
	// address, e.g. ws://127.0.0.1:5556.
	Broker string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// BrokerURL returns the base URL of the broker, without a path.
func (f *Flags) BrokerURL() string {
	if f.Broker != "" {
		return strings.TrimSuffix(f.Broker, "/")
	}
	return "ws://" + f.Config.Listen
}

// HTTPURL returns the broker's HTTP base URL.
func (f *Flags) HTTPURL() string {
	u := f.BrokerURL()
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "deskbus", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "deskbus")
}
