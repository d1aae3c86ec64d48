package power

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	logs "github.com/danmuck/meshboard/internal/logging"
)

// Health is one probe reading.
type Health struct {
	Normal bool
	Reason string
}

// Probe reports whether the host can safely power a radio.
type Probe interface {
	Check(ctx context.Context) (Health, error)
}

// AlwaysNormal is the probe for hosts without a power sensor.
type AlwaysNormal struct{}

func (AlwaysNormal) Check(context.Context) (Health, error) {
	return Health{Normal: true}, nil
}

// Throttle flags reported by `vcgencmd get_throttled` that are active right now.
const (
	FlagUnderVoltage   = 0x1
	FlagFreqCapped     = 0x2
	FlagThrottled      = 0x4
	FlagSoftTempLimit  = 0x8
	activeFlagMask     = FlagUnderVoltage | FlagFreqCapped | FlagThrottled | FlagSoftTempLimit
	notFoundExitStatus = 127
)

// Vcgencmd reads Raspberry Pi firmware throttle flags.
type Vcgencmd struct {
	Runner  CommandRunner
	Timeout time.Duration
}

func NewVcgencmd() Vcgencmd {
	return Vcgencmd{Runner: ExecRunner{}, Timeout: 3 * time.Second}
}

func (p Vcgencmd) Check(ctx context.Context) (Health, error) {
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	stdout, stderr, code, err := runner.Run(ctx, "vcgencmd", "get_throttled")
	if code == notFoundExitStatus {
		// not a Pi: nothing to read
		return Health{Normal: true}, nil
	}
	if err != nil {
		return Health{}, fmt.Errorf("power: vcgencmd exit=%d stderr=%q: %w", code, strings.TrimSpace(string(stderr)), err)
	}
	flags, err := ParseThrottled(string(stdout))
	if err != nil {
		return Health{}, err
	}
	h := Interpret(flags)
	if !h.Normal {
		logs.Warnf("power.Vcgencmd.Check flags=%#x reason=%q", flags, h.Reason)
	}
	return h, nil
}

// ParseThrottled parses `throttled=0x50005`.
func ParseThrottled(out string) (uint64, error) {
	out = strings.TrimSpace(out)
	_, value, ok := strings.Cut(out, "=")
	if !ok {
		return 0, fmt.Errorf("power: unexpected vcgencmd output %q", out)
	}
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	flags, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("power: parse throttled %q: %w", out, err)
	}
	return flags, nil
}

// Interpret maps active throttle flags to a health reading. Sticky
// "has occurred" bits are ignored.
func Interpret(flags uint64) Health {
	active := flags & activeFlagMask
	if active == 0 {
		return Health{Normal: true}
	}
	var reasons []string
	if active&FlagUnderVoltage != 0 {
		reasons = append(reasons, "under-voltage detected")
	}
	if active&FlagFreqCapped != 0 {
		reasons = append(reasons, "arm frequency capped")
	}
	if active&FlagThrottled != 0 {
		reasons = append(reasons, "currently throttled")
	}
	if active&FlagSoftTempLimit != 0 {
		reasons = append(reasons, "soft temperature limit active")
	}
	return Health{Normal: false, Reason: strings.Join(reasons, "; ")}
}
