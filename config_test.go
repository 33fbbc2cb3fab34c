package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupAppDir(t *testing.T) {
	t.Helper()
	appDir = t.TempDir()
	t.Cleanup(func() { appDir = "" })
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	setupAppDir(t)
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Layout != "center-avg" || cfg.Source.Width != 1280 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestConfigSaveAndLoadRoundTrip(t *testing.T) {
	setupAppDir(t)
	path := filepath.Join(appDir, "nested", "config.json")

	cfg := Default()
	cfg.Layout = "five"
	cfg.Window = 6
	cfg.Source.Kind = "ffmpeg"
	cfg.Source.Device = "/dev/video2"
	cfg.Hue.Enabled = true
	cfg.Hue.BridgeIP = "192.168.1.2"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("file permissions: got %o, want 0600", info.Mode().Perm())
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Layout != "five" || got.Window != 6 || got.Source.Device != "/dev/video2" || got.Hue.BridgeIP != "192.168.1.2" {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestLoadConfig_PartialKeepsDefaults(t *testing.T) {
	setupAppDir(t)
	path := filepath.Join(appDir, "config.json")
	if err := os.WriteFile(path, []byte(`{"layout":"quincunx"}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Layout != "quincunx" {
		t.Errorf("expected layout quincunx, got %s", cfg.Layout)
	}
	if cfg.CopyFormat != "hex" || cfg.Source.Framerate != 30 {
		t.Errorf("expected defaults for unset fields, got %+v", cfg)
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	setupAppDir(t)
	path := filepath.Join(appDir, "config.json")
	if err := os.WriteFile(path, []byte(`{"layout":`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown layout", func(c *Config) { c.Layout = "spiral" }},
		{"negative window", func(c *Config) { c.Window = -2 }},
		{"bad copy format", func(c *Config) { c.CopyFormat = "hsl" }},
		{"zero notice", func(c *Config) { c.NoticeMS = 0 }},
		{"zero width", func(c *Config) { c.Source.Width = 0 }},
		{"zero framerate", func(c *Config) { c.Source.Framerate = 0 }},
		{"file without path", func(c *Config) { c.Source.Kind = "file" }},
		{"hue rate too high", func(c *Config) { c.Hue.Enabled = true; c.Hue.RateHz = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfigNewLayout_UnknownIsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Layout = "nope"
	if _, err := cfg.NewLayout(); !errors.Is(err, ErrUnknownLayout) {
		t.Errorf("expected ErrUnknownLayout, got %v", err)
	}
}
