package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// FileConfig is the on-disk shape of a meshboard config.toml.
// Durations are Go duration strings ("30s", "1m").
type FileConfig struct {
	BoardChannel        string   `toml:"board_channel"`
	DBPath              string   `toml:"db_path"`
	HTTPAddr            string   `toml:"http_addr"`
	CorsOrigins         []string `toml:"cors_origins"`
	AdminToken          string   `toml:"admin_token"`
	SendInterval        string   `toml:"send_interval"`
	AckTimeout          string   `toml:"ack_timeout"`
	AckDelay            string   `toml:"ack_delay"`
	AckAttempts         int      `toml:"ack_attempts"`
	AckSpacing          string   `toml:"ack_spacing"`
	TxMinSpacing        string   `toml:"tx_min_spacing"`
	PollInterval        string   `toml:"poll_interval"`
	PowerCooldown       string   `toml:"power_cooldown"`
	ConnectAttempts     int      `toml:"connect_attempts"`
	PortPatterns        []string `toml:"port_patterns"`
	Driver              string   `toml:"driver"`
	PowerProbe          string   `toml:"power_probe"`
	MaxNotes            int      `toml:"max_notes"`
	MaxNoteShow         int      `toml:"max_note_show"`
	MaxArchivedNoteShow int      `toml:"max_archived_note_show"`
	PinReapplyDelay     string   `toml:"pin_reapply_delay"`
	LegacyFollowups     bool     `toml:"legacy_followups"`
}

func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if err := loadToml(path, &cfg); err != nil {
		return FileConfig{}, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return FileConfig{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

// ValidateConfig checks the fields a file sets. Unset fields fall back to
// service defaults and are not errors.
func ValidateConfig(cfg FileConfig) error {
	durations := []struct {
		key string
		val string
	}{
		{"send_interval", cfg.SendInterval},
		{"ack_timeout", cfg.AckTimeout},
		{"ack_delay", cfg.AckDelay},
		{"ack_spacing", cfg.AckSpacing},
		{"tx_min_spacing", cfg.TxMinSpacing},
		{"poll_interval", cfg.PollInterval},
		{"power_cooldown", cfg.PowerCooldown},
		{"pin_reapply_delay", cfg.PinReapplyDelay},
	}
	for _, d := range durations {
		if _, err := ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	if cfg.AckAttempts < 0 || cfg.ConnectAttempts < 0 {
		return fmt.Errorf("attempt counts must not be negative")
	}
	if cfg.MaxNotes < 0 || cfg.MaxNoteShow < 0 || cfg.MaxArchivedNoteShow < 0 {
		return fmt.Errorf("note limits must not be negative")
	}
	switch strings.TrimSpace(cfg.PowerProbe) {
	case "", "vcgencmd", "none":
	default:
		return fmt.Errorf("power_probe %q (expected vcgencmd or none)", cfg.PowerProbe)
	}
	switch strings.TrimSpace(cfg.Driver) {
	case "", "sim":
	default:
		return fmt.Errorf("driver %q is not built in (expected sim)", cfg.Driver)
	}
	return nil
}

// ParseDuration accepts an empty string as zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
