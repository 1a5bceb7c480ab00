/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/Seednode/fadetoe/internal/transport"
)

func testConfig() *Config {
	return &Config{
		bind:             "127.0.0.1",
		port:             8080,
		connectTimeout:   2 * time.Second,
		handshakeTimeout: time.Second,
		reconnectTimeout: time.Minute,
		rejoin:           rejoinNever,
		store:            storeMemory,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"lone cert", func(c *Config) { c.tlsCert = "cert.pem" }, "tls-key"},
		{"port zero", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too high", func(c *Config) { c.port = 70000 }, "invalid port"},
		{"zero timeout", func(c *Config) { c.handshakeTimeout = 0 }, "timeouts"},
		{"unknown store", func(c *Config) { c.store = "etcd" }, "unknown store"},
		{"redis without dsn", func(c *Config) { c.store = storeRedis }, "store-dsn"},
		{"postgres with dsn", func(c *Config) { c.store = storePostgres; c.storeDSN = "host=db" }, ""},
		{"file without dir", func(c *Config) { c.store = storeFile }, "state-dir"},
		{"bad rejoin", func(c *Config) { c.rejoin = "sometimes" }, "--rejoin"},
		{"bad public url", func(c *Config) { c.publicURL = "example.com" }, "public-url"},
		{"bad relay", func(c *Config) {
			c.relays = []transport.Relay{{Address: "relay.example", Port: 3478, Transport: "quic"}}
		}, "unknown transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tt.wantErr != "" && err == nil:
				t.Fatalf("expected error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// parse runs the command line through flag, environment and config file
// handling without starting a match.
func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	cfg := &Config{}
	cmd := newCmd(cfg)
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	cmd.SetArgs(args)

	return cfg, cmd.Execute()
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("FADETOE_PORT", "9090")
	t.Setenv("FADETOE_RECONNECT_TIMEOUT", "90s")
	t.Setenv("FADETOE_STORE", "memory")

	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if cfg.port != 9090 || cfg.reconnectTimeout != 90*time.Second || cfg.store != storeMemory {
		t.Fatalf("environment not applied: port=%d reconnect=%s store=%s", cfg.port, cfg.reconnectTimeout, cfg.store)
	}
	if cfg.handshakeTimeout != 5*time.Second {
		t.Fatalf("default handshake timeout changed to %s", cfg.handshakeTimeout)
	}
}

func TestConfigFileSuppliesRelays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fadetoe.yaml")
	data := `port: 9191
store: memory
relays:
  - address: relay.example
    port: 443
    transport: tls
    username: openrelayproject
    credential: secret
  - address: relay.example
    port: 3478
    transport: udp
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "--config", path, "--port", "9292")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if cfg.port != 9292 {
		t.Fatalf("command line should win over the config file, got port %d", cfg.port)
	}
	if cfg.store != storeMemory {
		t.Fatalf("store from config file not applied: %s", cfg.store)
	}
	if len(cfg.relays) != 2 {
		t.Fatalf("expected 2 relays, got %d", len(cfg.relays))
	}

	r := cfg.relays[0]
	if r.Address != "relay.example" || r.Port != 443 || r.Transport != "tls" || r.Username != "openrelayproject" || r.Credential != "secret" {
		t.Fatalf("unexpected relay %+v", r)
	}
}

func TestConfigFileWithBadRelayFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fadetoe.yaml")
	data := `store: memory
relays:
  - address: relay.example
    port: 0
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := parse(t, "--config", path); err == nil {
		t.Fatalf("expected invalid relay port to fail")
	}
}

func TestJoinTakesOneURL(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)

	join, _, err := cmd.Find([]string{"join"})
	if err != nil || join.Name() != "join" {
		t.Fatalf("join subcommand missing: %v", err)
	}
	if err := join.Args(join, nil); err == nil {
		t.Fatalf("join should require a URL")
	}
	if err := join.Args(join, []string{"http://host/match/abc"}); err != nil {
		t.Fatalf("join rejected a URL: %v", err)
	}
}
