package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/meshboard/internal/config"
	"github.com/danmuck/meshboard/internal/meshboard"
)

// meshboardctl loader for TOML config with default overlay.
func loadServiceConfig(path string) (meshboard.ServiceConfig, error) {
	cfg := meshboard.DefaultServiceConfig()

	var raw config.FileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return meshboard.ServiceConfig{}, fmt.Errorf("load meshboard config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return meshboard.ServiceConfig{}, fmt.Errorf("load meshboard config: unknown key %q", undecoded[0].String())
	}
	if err := config.ValidateConfig(raw); err != nil {
		return meshboard.ServiceConfig{}, fmt.Errorf("load meshboard config: %w", err)
	}

	if meta.IsDefined("board_channel") {
		cfg.BoardChannel = strings.TrimSpace(raw.BoardChannel)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("ack_attempts") {
		cfg.AckAttempts = raw.AckAttempts
	}
	if meta.IsDefined("connect_attempts") {
		cfg.ConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("port_patterns") {
		cfg.PortPatterns = raw.PortPatterns
	}
	if meta.IsDefined("driver") {
		cfg.Driver = strings.TrimSpace(raw.Driver)
	}
	if meta.IsDefined("power_probe") {
		cfg.PowerProbe = strings.TrimSpace(raw.PowerProbe)
	}
	if meta.IsDefined("max_notes") {
		cfg.MaxNotes = raw.MaxNotes
	}
	if meta.IsDefined("max_note_show") {
		cfg.MaxNoteShow = raw.MaxNoteShow
	}
	if meta.IsDefined("max_archived_note_show") {
		cfg.MaxArchivedNoteShow = raw.MaxArchivedNoteShow
	}
	if meta.IsDefined("legacy_followups") {
		cfg.LegacyFollowups = raw.LegacyFollowups
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"send_interval", raw.SendInterval, &cfg.SendInterval},
		{"ack_timeout", raw.AckTimeout, &cfg.AckTimeout},
		{"ack_delay", raw.AckDelay, &cfg.AckDelay},
		{"ack_spacing", raw.AckSpacing, &cfg.AckSpacing},
		{"tx_min_spacing", raw.TxMinSpacing, &cfg.TxMinSpacing},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"power_cooldown", raw.PowerCooldown, &cfg.PowerCooldown},
		{"pin_reapply_delay", raw.PinReapplyDelay, &cfg.PinReapplyDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.raw)
		if err != nil {
			return meshboard.ServiceConfig{}, fmt.Errorf("load meshboard config: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return meshboard.ServiceConfig{}, fmt.Errorf("load meshboard config: %w", err)
	}
	return cfg, nil
}
