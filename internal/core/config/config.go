// Package config handles configuration loading and validation for deskbus.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/deskbus/internal/core/protocol"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DESKBUS_"

// DefaultChannel is the channel every endpoint starts on.
const DefaultChannel = "default"

// Config holds the application configuration.
type Config struct {
	Listen      string                 `yaml:"listen" env:"LISTEN"`
	CORSOrigins []string               `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	Directory   DirectoryConfig        `yaml:"directory" envPrefix:"DIRECTORY_"`
	Broker      BrokerConfig           `yaml:"broker" envPrefix:"BROKER_"`
	Host        HostConfig             `yaml:"host"`
	Channels    []protocol.ChannelInfo `yaml:"channels"`
	Bindings    []Binding              `yaml:"bindings"`
	DataDir     string                 `yaml:"-"` // set by caller, not from config file
}

// DirectoryConfig selects where the application catalog comes from. Exactly
// one of URL or File is expected.
type DirectoryConfig struct {
	URL              string        `yaml:"url" env:"URL"`
	File             string        `yaml:"file" env:"FILE"`
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	CacheSize        int           `yaml:"cache_size" env:"CACHE_SIZE"`
	FailureThreshold uint32        `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	CooldownPeriod   time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// BrokerConfig tunes the broker event loop.
type BrokerConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	HistoryLimit   int           `yaml:"history_limit" env:"HISTORY_LIMIT"`
	OutboundBuffer int           `yaml:"outbound_buffer" env:"OUTBOUND_BUFFER"`
}

// HostConfig holds the shell command templates used to drive the desktop.
type HostConfig struct {
	// Open commands receive {{ .URL }}, {{ .Name }} and {{ .Type }}.
	Open []string `yaml:"open"`
	// Focus commands receive {{ .Identity }} and {{ .App }}.
	Focus []string `yaml:"focus"`
}

// Binding associates endpoint identities matching a glob pattern with a
// directory application.
type Binding struct {
	Pattern string `yaml:"pattern"`
	App     string `yaml:"app"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:      "127.0.0.1:5556",
		CORSOrigins: []string{"*"},
		Directory: DirectoryConfig{
			Timeout:          10 * time.Second,
			CacheSize:        128,
			FailureThreshold: 5,
			CooldownPeriod:   30 * time.Second,
		},
		Broker: BrokerConfig{
			RequestTimeout: 2 * time.Minute,
			SweepInterval:  5 * time.Second,
			HistoryLimit:   50,
			OutboundBuffer: 256,
		},
		Host: HostConfig{
			Open: []string{"xdg-open {{ .URL | shq }}"},
		},
		Channels: []protocol.ChannelInfo{
			{ID: "red", Name: "Red", Color: "#FF0000"},
			{ID: "orange", Name: "Orange", Color: "#FF8000"},
			{ID: "yellow", Name: "Yellow", Color: "#FFFF00"},
			{ID: "green", Name: "Green", Color: "#00FF00"},
			{ID: "blue", Name: "Blue", Color: "#0000FF"},
			{ID: "purple", Name: "Purple", Color: "#FF00FF"},
		},
	}
}

// Load reads configuration from the given path, applies environment
// overrides and sets the data directory. If configPath is empty or doesn't
// exist, defaults are used.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.DataDir = dataDir
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}
	if c.Directory.Timeout == 0 {
		c.Directory.Timeout = defaults.Directory.Timeout
	}
	if c.Directory.CacheSize == 0 {
		c.Directory.CacheSize = defaults.Directory.CacheSize
	}
	if c.Directory.FailureThreshold == 0 {
		c.Directory.FailureThreshold = defaults.Directory.FailureThreshold
	}
	if c.Directory.CooldownPeriod == 0 {
		c.Directory.CooldownPeriod = defaults.Directory.CooldownPeriod
	}
	if c.Broker.RequestTimeout == 0 {
		c.Broker.RequestTimeout = defaults.Broker.RequestTimeout
	}
	if c.Broker.SweepInterval == 0 {
		c.Broker.SweepInterval = defaults.Broker.SweepInterval
	}
	if c.Broker.HistoryLimit == 0 {
		c.Broker.HistoryLimit = defaults.Broker.HistoryLimit
	}
	if c.Broker.OutboundBuffer == 0 {
		c.Broker.OutboundBuffer = defaults.Broker.OutboundBuffer
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen cannot be empty")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Broker.RequestTimeout < time.Second {
		return fmt.Errorf("broker.request_timeout must be at least 1s")
	}

	if c.Broker.SweepInterval <= 0 {
		return fmt.Errorf("broker.sweep_interval must be positive")
	}

	if c.Broker.HistoryLimit < 1 {
		return fmt.Errorf("broker.history_limit must be at least 1")
	}

	if c.Broker.OutboundBuffer < 1 {
		return fmt.Errorf("broker.outbound_buffer must be at least 1")
	}

	return nil
}

// ChannelsFile returns the path to the persisted channel memberships.
func (c *Config) ChannelsFile() string {
	return filepath.Join(c.DataDir, "channels.json")
}

// SystemChannel returns the configured system channel with id.
func (c *Config) SystemChannel(id string) (protocol.ChannelInfo, bool) {
	for _, ch := range c.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return protocol.ChannelInfo{}, false
}
