package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlags_OnlyGivenFlagsOverride(t *testing.T) {
	opts, err := parseFlags([]string{"-layout", "five", "-window", "4"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	cfg := Default()
	cfg.Source.Device = "/dev/video3"
	opts.apply(cfg)

	if cfg.Layout != "five" || cfg.Window != 4 {
		t.Errorf("expected five/4, got %s/%d", cfg.Layout, cfg.Window)
	}
	if cfg.Source.Device != "/dev/video3" {
		t.Errorf("expected device from config to be kept, got %q", cfg.Source.Device)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %q", cfg.LogLevel)
	}
}

func TestParseFlags_FileSelectsFileSource(t *testing.T) {
	opts, err := parseFlags([]string{"-file", "pic.png", "-debug"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	cfg := Default()
	opts.apply(cfg)

	if cfg.Source.Kind != "file" || cfg.Source.Path != "pic.png" {
		t.Errorf("expected file source pic.png, got %s %q", cfg.Source.Kind, cfg.Source.Path)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.LogLevel)
	}
}

func TestParseFlags_RejectsArguments(t *testing.T) {
	if _, err := parseFlags([]string{"extra"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "campick ") {
		t.Errorf("unexpected version output %q", stdout.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	setupAppDir(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-once", "-layout", "spiral"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "invalid config") {
		t.Errorf("expected invalid config message, got %q", stderr.String())
	}
}

func TestRun_OncePrintsRecords(t *testing.T) {
	setupAppDir(t)
	path := writePNG(t, t.TempDir(), newUniformFrame(64, 48, RGB{10, 20, 30}))

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-once", "-file", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	var got []ColorRecord
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decoding output %q: %v", stdout.String(), err)
	}
	want := ColorRecord{Hex: "#0a141e", RGB: RGB{10, 20, 30}}
	if len(got) != 1 || got[0] != want {
		t.Errorf("expected [%+v], got %+v", want, got)
	}
}

func TestRun_OnceOutOfBounds(t *testing.T) {
	setupAppDir(t)
	path := writePNG(t, t.TempDir(), newUniformFrame(4, 4, RGB{1, 1, 1}))

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-once", "-file", path, "-layout", "center-avg"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no output, got %q", stdout.String())
	}
}

func TestRun_UsesConfigFile(t *testing.T) {
	setupAppDir(t)
	path := writePNG(t, t.TempDir(), newUniformFrame(540, 280, RGB{255, 255, 255}))

	cfg := Default()
	cfg.Layout = "five"
	cfg.Source.Kind = "file"
	cfg.Source.Path = path
	cfgPath := filepath.Join(appDir, "custom.json")
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-once", "-config", cfgPath}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}

	var got []ColorRecord
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 records, got %d", len(got))
	}
	for i, r := range got {
		if r.Hex != "#ffffff" {
			t.Errorf("record %d: expected #ffffff, got %s", i, r.Hex)
		}
	}
}

func TestOpenLogFile_Default(t *testing.T) {
	setupAppDir(t)

	f, err := openLogFile("")
	if err != nil {
		t.Fatalf("openLogFile: %v", err)
	}
	defer f.Close()

	if f.Name() != filepath.Join(appDir, "campick.log") {
		t.Errorf("unexpected log path %s", f.Name())
	}
	info, err := os.Stat(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %o", info.Mode().Perm())
	}
}
