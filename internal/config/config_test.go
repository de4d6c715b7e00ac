package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.RuntimeName != "faceflow-runtime" {
		t.Fatalf("unexpected runtime name: %q", cfg.RuntimeName)
	}
	if cfg.Service.Mode != "mock" || cfg.Service.ChunkBytes != 65536 {
		t.Fatalf("unexpected service defaults: %+v", cfg.Service)
	}
	if cfg.Relay.WSURL != "ws://localhost:2000" {
		t.Fatalf("unexpected relay ws url: %q", cfg.Relay.WSURL)
	}
	if cfg.Synth.SampleRate != 44100 || cfg.Synth.Channels != 1 {
		t.Fatalf("unexpected synth defaults: %+v", cfg.Synth)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faceflow.yaml")
	body := `
runtime_name: test-runtime
service:
  mode: external
  target: inference.local:52000
  chunk_bytes: 4096
relay:
  mode: "off"
synth:
  mode: mock
  sample_rate: 16000
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" {
		t.Fatalf("unexpected runtime name: %q", cfg.RuntimeName)
	}
	if cfg.Service.Mode != "external" || cfg.Service.Target != "inference.local:52000" {
		t.Fatalf("unexpected service config: %+v", cfg.Service)
	}
	if cfg.Service.ChunkBytes != 4096 {
		t.Fatalf("unexpected chunk bytes: %d", cfg.Service.ChunkBytes)
	}
	if cfg.Relay.Mode != "off" {
		t.Fatalf("unexpected relay mode: %q", cfg.Relay.Mode)
	}
	if cfg.Synth.SampleRate != 16000 {
		t.Fatalf("unexpected sample rate: %d", cfg.Synth.SampleRate)
	}
	// unset sections keep defaults
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("unexpected http port: %d", cfg.HTTP.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FACEFLOW_RUNTIME_NAME", "env-runtime")
	t.Setenv("FACEFLOW_SERVICE_CHUNK_BYTES", "1024")
	t.Setenv("FACEFLOW_SESSION_RELAY_AUDIO", "true")
	t.Setenv("FACEFLOW_RELAY_WS_URL", "ws://hub.local:2000")
	t.Setenv("FACEFLOW_BUS_SERVERS", "nats://a:4222, nats://b:4222")
	t.Setenv("FACEFLOW_STORE_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RuntimeName != "env-runtime" {
		t.Fatalf("unexpected runtime name: %q", cfg.RuntimeName)
	}
	if cfg.Service.ChunkBytes != 1024 {
		t.Fatalf("unexpected chunk bytes: %d", cfg.Service.ChunkBytes)
	}
	if !cfg.Session.RelayAudio {
		t.Fatal("relay_audio override not applied")
	}
	if cfg.Relay.WSURL != "ws://hub.local:2000" {
		t.Fatalf("unexpected ws url: %q", cfg.Relay.WSURL)
	}
	if len(cfg.Bus.Servers) != 2 || cfg.Bus.Servers[1] != "nats://b:4222" {
		t.Fatalf("unexpected bus servers: %v", cfg.Bus.Servers)
	}
	if cfg.Store.RetentionMode != "ephemeral" {
		t.Fatalf("unexpected retention mode: %q", cfg.Store.RetentionMode)
	}
}

func TestEnvOverrideIgnoresInvalidValues(t *testing.T) {
	t.Setenv("FACEFLOW_HTTP_PORT", "not-a-number")
	t.Setenv("FACEFLOW_SESSION_RELAY_AUDIO", "maybe")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("invalid int override must keep default, got %d", cfg.HTTP.Port)
	}
	if cfg.Session.RelayAudio {
		t.Fatal("invalid bool override must keep default")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad service mode", func(c *Config) { c.Service.Mode = "grpc" }, "service.mode"},
		{"external without target", func(c *Config) { c.Service.Mode = "external"; c.Service.Target = "" }, "service.target"},
		{"zero chunk bytes", func(c *Config) { c.Service.ChunkBytes = 0 }, "chunk_bytes"},
		{"bad relay mode", func(c *Config) { c.Relay.Mode = "udp" }, "relay.mode"},
		{"ws without url", func(c *Config) { c.Relay.WSURL = "" }, "relay.ws_url"},
		{"nats without servers", func(c *Config) { c.Relay.Mode = "nats"; c.Bus.Embedded = false; c.Bus.Servers = nil }, "bus.servers"},
		{"exec without command", func(c *Config) { c.Synth.Mode = "exec"; c.Synth.Command = "" }, "synth.command"},
		{"stereo synth", func(c *Config) { c.Synth.Channels = 2 }, "synth.channels"},
		{"bad retention mode", func(c *Config) { c.Store.RetentionMode = "forever" }, "retention_mode"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
