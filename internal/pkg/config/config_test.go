package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.BaseURL != "http://localhost:8000" {
			t.Errorf("BaseURL = %v, want http://localhost:8000", cfg.Server.BaseURL)
		}
		if cfg.Server.Path != "/agent/chat" {
			t.Errorf("Path = %v, want /agent/chat", cfg.Server.Path)
		}
		if cfg.Transport.Kind != "post" {
			t.Errorf("Kind = %v, want post", cfg.Transport.Kind)
		}
		if cfg.Transport.ContinuityHeader != "x-session-id" {
			t.Errorf("ContinuityHeader = %v, want x-session-id", cfg.Transport.ContinuityHeader)
		}
		if cfg.Storage.Type != "memory" {
			t.Errorf("Storage.Type = %v, want memory", cfg.Storage.Type)
		}
		if cfg.DevServer.Port != 8000 {
			t.Errorf("DevServer.Port = %v, want 8000", cfg.DevServer.Port)
		}
		if d, err := cfg.Transport.IdleTimeoutDuration(); err != nil || d != 120*time.Second {
			t.Errorf("IdleTimeoutDuration() = %v, %v, want 120s", d, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("env var override", func(t *testing.T) {
		t.Setenv("STREAMCHAT_TRANSPORT__KIND", "eventsource")
		t.Setenv("STREAMCHAT_DEVSERVER__PORT", "9000")

		cfg, err := LoadFile("")
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Transport.Kind != "eventsource" {
			t.Errorf("Kind = %v, want eventsource", cfg.Transport.Kind)
		}
		if cfg.DevServer.Port != 9000 {
			t.Errorf("DevServer.Port = %v, want 9000", cfg.DevServer.Port)
		}
	})

	t.Run("yaml file with env substitution", func(t *testing.T) {
		t.Setenv("CHAT_TEST_TOKEN", "secret-token")

		path := filepath.Join(t.TempDir(), "config.yaml")
		yaml := `server:
  base_url: https://chat.example.com
transport:
  kind: eventsource
  idle_timeout: 45s
auth:
  token: ${CHAT_TEST_TOKEN}
storage:
  type: sqlite
  sqlite:
    path: /tmp/chat.db
`
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.Server.BaseURL != "https://chat.example.com" {
			t.Errorf("BaseURL = %v", cfg.Server.BaseURL)
		}
		if cfg.Auth.Token != "secret-token" {
			t.Errorf("Token = %v, want secret-token", cfg.Auth.Token)
		}
		if d, _ := cfg.Transport.IdleTimeoutDuration(); d != 45*time.Second {
			t.Errorf("IdleTimeoutDuration() = %v, want 45s", d)
		}
		if cfg.Storage.SQLite.Path != "/tmp/chat.db" {
			t.Errorf("SQLite.Path = %v", cfg.Storage.SQLite.Path)
		}
		// Values absent from the file still get defaults.
		if cfg.Server.Path != "/agent/chat" {
			t.Errorf("Path = %v, want default", cfg.Server.Path)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Transport: TransportConfig{Kind: "post", IdleTimeout: "10s"},
			Storage:   StorageConfig{Type: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "eventsource", mutate: func(c *Config) { c.Transport.Kind = "eventsource" }},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport.Kind = "websocket" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Type = "postgres" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Type = "sqlite" }, wantErr: true},
		{name: "bad idle timeout", mutate: func(c *Config) { c.Transport.IdleTimeout = "soon" }, wantErr: true},
		{name: "disabled idle timeout", mutate: func(c *Config) { c.Transport.IdleTimeout = "0" }},
		{name: "bad delay", mutate: func(c *Config) { c.DevServer.Delay = "x" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR_STREAMCHAT}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
