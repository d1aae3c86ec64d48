package power

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

type fakeRunner struct {
	stdout string
	code   int32
	err    error
}

func (f fakeRunner) Run(context.Context, string, ...string) ([]byte, []byte, int32, error) {
	return []byte(f.stdout), nil, f.code, f.err
}

func TestVcgencmdHealthy(t *testing.T) {
	testlog.Start(t)
	p := Vcgencmd{Runner: fakeRunner{stdout: "throttled=0x50000\n"}}
	h, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !h.Normal {
		t.Fatalf("sticky bits only should be normal: %+v", h)
	}
}

func TestVcgencmdUnderVoltage(t *testing.T) {
	testlog.Start(t)
	p := Vcgencmd{Runner: fakeRunner{stdout: "throttled=0x50005"}}
	h, err := p.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if h.Normal || h.Reason != "under-voltage detected; currently throttled" {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestVcgencmdMissingBinaryIsNormal(t *testing.T) {
	testlog.Start(t)
	p := Vcgencmd{Runner: fakeRunner{code: 127, err: errors.New("exec: not found")}}
	h, err := p.Check(context.Background())
	if err != nil || !h.Normal {
		t.Fatalf("expected normal, got %+v err=%v", h, err)
	}
}

func TestParseThrottledRejectsGarbage(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseThrottled("nope"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseThrottled("throttled=0xzz"); err == nil {
		t.Fatalf("expected parse error")
	}
}
