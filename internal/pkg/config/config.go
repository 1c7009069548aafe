package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Transport TransportConfig `koanf:"transport"`
	Auth      AuthConfig      `koanf:"auth"`
	Storage   StorageConfig   `koanf:"storage"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	DevServer DevServerConfig `koanf:"devserver"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	BaseURL string `koanf:"base_url"`
	Path    string `koanf:"path"`
}

type TransportConfig struct {
	Kind             string `koanf:"kind"`         // post, eventsource
	IdleTimeout      string `koanf:"idle_timeout"` // Duration string like "120s"; "0" disables
	ContinuityHeader string `koanf:"continuity_header"`
	UserAgent        string `koanf:"user_agent"`
}

type AuthConfig struct {
	Token     string `koanf:"token"`
	TokenFile string `koanf:"token_file"` // Reloaded on change; wins over Token
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DevServerConfig configures the reference stream server.
type DevServerConfig struct {
	Port   int    `koanf:"port"`
	Token  string `koanf:"token"`
	Delay  string `koanf:"delay"`   // Pause between streamed words
	FailOn string `koanf:"fail_on"` // Messages containing this word end with an error event
}

// IdleTimeoutDuration parses Transport.IdleTimeout.
func (c TransportConfig) IdleTimeoutDuration() (time.Duration, error) {
	if c.IdleTimeout == "" || c.IdleTimeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid transport.idle_timeout %q: %w", c.IdleTimeout, err)
	}
	return d, nil
}

// DelayDuration parses DevServer.Delay.
func (c DevServerConfig) DelayDuration() (time.Duration, error) {
	if c.Delay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Delay)
	if err != nil {
		return 0, fmt.Errorf("invalid devserver.delay %q: %w", c.Delay, err)
	}
	return d, nil
}

// Validate checks enumerated values and durations.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "post", "eventsource":
	default:
		return fmt.Errorf("unknown transport.kind %q (want post or eventsource)", c.Transport.Kind)
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q (want memory or sqlite)", c.Storage.Type)
	}
	if _, err := c.Transport.IdleTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.DevServer.DelayDuration(); err != nil {
		return err
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads config.yaml from the working directory, then STREAMCHAT_ env vars.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the given YAML file, if it exists, then STREAMCHAT_ env vars
// (STREAMCHAT_TRANSPORT__KIND sets transport.kind).
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider("STREAMCHAT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STREAMCHAT_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]any{
		"server.base_url":             "http://localhost:8000",
		"server.path":                 "/agent/chat",
		"transport.kind":              "post",
		"transport.idle_timeout":      "120s",
		"transport.continuity_header": "x-session-id",
		"storage.type":                "memory",
		"storage.sqlite.path":         "streamchat.db",
		"log.level":                   "info",
		"log.format":                  "text",
		"devserver.port":              8000,
		"devserver.delay":             "30ms",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.Auth.Token = substituteEnvVars(cfg.Auth.Token)
	cfg.Auth.TokenFile = substituteEnvVars(cfg.Auth.TokenFile)
	cfg.DevServer.Token = substituteEnvVars(cfg.DevServer.Token)

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
