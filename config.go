package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// appDir overrides the default ~/.campick directory for testing.
var appDir string

// dataDir returns the directory holding config, credentials and logs.
func dataDir() (string, error) {
	if appDir != "" {
		return appDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".campick"), nil
}

// Config holds the application configuration.
type Config struct {
	Layout     string       `json:"layout"`
	Window     int          `json:"window"`      // 0 keeps the layout default
	CopyFormat string       `json:"copy_format"` // hex or rgb
	NoticeMS   int          `json:"notice_ms"`
	LogLevel   string       `json:"log_level"`
	LogFile    string       `json:"log_file"`
	Source     SourceConfig `json:"source"`
	Hue        HueConfig    `json:"hue"`
}

// SourceConfig selects and sizes the frame source.
type SourceConfig struct {
	Kind      string `json:"kind"`   // auto, pipewire, ffmpeg, gocv, screen, file
	Device    string `json:"device"` // camera device, platform specific
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Framerate int    `json:"framerate"`
	Path      string `json:"path"` // still image for the file source
}

// HueConfig controls mirroring sampled colors to a Hue entertainment area.
type HueConfig struct {
	Enabled  bool   `json:"enabled"`
	BridgeIP string `json:"bridge_ip"` // empty means discover via mDNS
	AreaID   string `json:"area_id"`   // empty means the only area
	RateHz   int    `json:"rate_hz"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Layout:     "center-avg",
		CopyFormat: "hex",
		NoticeMS:   2000,
		LogLevel:   "info",
		Source: SourceConfig{
			Kind:      "auto",
			Width:     defaultReference.X,
			Height:    defaultReference.Y,
			Framerate: 30,
		},
		Hue: HueConfig{RateHz: 25},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadConfig reads path on top of the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration for values the program cannot run with.
func (c *Config) Validate() error {
	if _, err := c.NewLayout(); err != nil {
		return err
	}
	if c.CopyFormat != "hex" && c.CopyFormat != "rgb" {
		return fmt.Errorf("copy_format must be hex or rgb, got %q", c.CopyFormat)
	}
	if c.NoticeMS <= 0 {
		return fmt.Errorf("notice_ms must be positive")
	}
	if c.Source.Width <= 0 || c.Source.Height <= 0 {
		return fmt.Errorf("source size %dx%d must be positive", c.Source.Width, c.Source.Height)
	}
	if c.Source.Framerate <= 0 {
		return fmt.Errorf("source.framerate must be positive")
	}
	if c.Source.Kind == "file" && c.Source.Path == "" {
		return fmt.Errorf("source.path is required for the file source")
	}
	if c.Hue.Enabled && (c.Hue.RateHz < 1 || c.Hue.RateHz > 50) {
		return fmt.Errorf("hue.rate_hz must be between 1 and 50")
	}
	return nil
}

// NewLayout builds the configured layout. five-fixed is anchored to the
// requested camera size.
func (c *Config) NewLayout() (Layout, error) {
	return NewLayout(c.Layout, c.Window, image.Pt(c.Source.Width, c.Source.Height))
}
