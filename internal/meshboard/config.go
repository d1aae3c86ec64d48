package meshboard

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/danmuck/meshboard/internal/board"
	"github.com/danmuck/meshboard/internal/link"
	"github.com/danmuck/meshboard/internal/protocol/session"
	"github.com/danmuck/meshboard/internal/radio"
	"github.com/danmuck/meshboard/internal/scheduler"
	"github.com/danmuck/meshboard/internal/store"
)

const (
	DriverSim = "sim"

	ProbeVcgencmd = "vcgencmd"
	ProbeNone     = "none"
)

var ErrInvalidConfig = errors.New("meshboard: invalid config")

// ServiceConfig is the full runtime configuration of one board node.
type ServiceConfig struct {
	BoardChannel string
	DBPath       string
	HTTPAddr     string
	CORSOrigins  []string
	AdminToken   string

	SendInterval time.Duration
	AckTimeout   time.Duration
	AckDelay     time.Duration
	AckAttempts  int
	AckSpacing   time.Duration
	TxMinSpacing time.Duration

	PollInterval    time.Duration
	PowerCooldown   time.Duration
	ConnectAttempts int
	PortPatterns    []string
	Driver          string
	PowerProbe      string

	MaxNotes            int
	MaxNoteShow         int
	MaxArchivedNoteShow int
	PinReapplyDelay     time.Duration
	LegacyFollowups     bool
}

func DefaultServiceConfig() ServiceConfig {
	rel := session.DefaultConfig()
	lnk := link.DefaultConfig()
	brd := board.DefaultConfig()
	return ServiceConfig{
		BoardChannel:        "noteboard",
		DBPath:              "meshboard.db",
		HTTPAddr:            ":8080",
		SendInterval:        scheduler.MinInterval,
		AckTimeout:          rel.AckTimeout,
		AckDelay:            rel.Ack.Delay,
		AckAttempts:         rel.Ack.Attempts,
		AckSpacing:          rel.Ack.Spacing,
		TxMinSpacing:        2 * time.Second,
		PollInterval:        lnk.PollInterval,
		PowerCooldown:       lnk.PowerCooldown,
		ConnectAttempts:     lnk.ConnectAttempts,
		PortPatterns:        radio.DefaultPortPatterns(runtime.GOOS),
		Driver:              DriverSim,
		PowerProbe:          ProbeVcgencmd,
		MaxNotes:            store.DefaultMaxNotes,
		MaxNoteShow:         brd.MaxNoteShow,
		MaxArchivedNoteShow: brd.MaxArchivedNoteShow,
		PinReapplyDelay:     brd.PinReapplyDelay,
	}
}

// Validate reports the first unusable setting.
func (c ServiceConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.BoardChannel) == "":
		return fmt.Errorf("%w: board_channel is required", ErrInvalidConfig)
	case strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	case strings.TrimSpace(c.HTTPAddr) == "":
		return fmt.Errorf("%w: http_addr is required", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	case c.AckTimeout <= 0:
		return fmt.Errorf("%w: ack_timeout must be positive", ErrInvalidConfig)
	case c.AckAttempts < 1 || c.ConnectAttempts < 1:
		return fmt.Errorf("%w: attempts must be at least 1", ErrInvalidConfig)
	case c.MaxNotes < 0 || c.MaxNoteShow < 0 || c.MaxArchivedNoteShow < 0:
		return fmt.Errorf("%w: note limits must not be negative", ErrInvalidConfig)
	}
	switch c.PowerProbe {
	case ProbeVcgencmd, ProbeNone:
	default:
		return fmt.Errorf("%w: unknown power_probe %q", ErrInvalidConfig, c.PowerProbe)
	}
	return nil
}

func (c ServiceConfig) reliability() session.Config {
	rel := session.DefaultConfig()
	rel.AckTimeout = c.AckTimeout
	rel.ConnectAttempts = c.ConnectAttempts
	rel.Ack = session.RetryPolicy{Delay: c.AckDelay, Attempts: c.AckAttempts, Spacing: c.AckSpacing}
	return rel
}

func (c ServiceConfig) linkConfig() link.Config {
	lc := link.DefaultConfig()
	lc.PollInterval = c.PollInterval
	lc.PowerCooldown = c.PowerCooldown
	lc.ConnectAttempts = c.ConnectAttempts
	return lc
}

func (c ServiceConfig) boardConfig(rel session.Config) board.Config {
	return board.Config{
		MaxNoteShow:         c.MaxNoteShow,
		MaxArchivedNoteShow: c.MaxArchivedNoteShow,
		Followup:            rel.Followup,
		PinReapplyDelay:     c.PinReapplyDelay,
		LegacyFollowups:     c.LegacyFollowups,
	}
}
