package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTemplateValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.BoardChannel != "noteboard" {
		t.Fatalf("unexpected board channel: %q", cfg.BoardChannel)
	}
	if cfg.AckAttempts != 3 {
		t.Fatalf("unexpected ack attempts: %d", cfg.AckAttempts)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# mine\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "board_channel") {
		t.Fatalf("template not written")
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := map[string]FileConfig{
		"duration": {AckTimeout: "soon"},
		"negative": {PollInterval: "-1s"},
		"attempts": {AckAttempts: -1},
		"limits":   {MaxNoteShow: -5},
		"probe":    {PowerProbe: "ina219"},
		"driver":   {Driver: "serial"},
	}
	for name, cfg := range cases {
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := ValidateConfig(FileConfig{}); err != nil {
		t.Fatalf("empty config should validate: %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration(" 1m30s ")
	if err != nil || d != 90*time.Second {
		t.Fatalf("unexpected parse: %v %v", d, err)
	}
	if d, err := ParseDuration(""); err != nil || d != 0 {
		t.Fatalf("empty should be zero: %v %v", d, err)
	}
}

func TestLoadConfigParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("board_channel = \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse failed") {
		t.Fatalf("expected parse failure, got %v", err)
	}
}
