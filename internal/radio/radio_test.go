package radio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

func TestSuppressTransientRoutes(t *testing.T) {
	testlog.Start(t)
	var got []Packet
	var faults, drops []error
	h := SuppressTransient(
		func(p Packet) { got = append(got, p) },
		func(err error) { faults = append(faults, err) },
		func(err error) { drops = append(drops, err) },
	)

	h(Packet{Kind: PacketText, Text: "/ack 1"}, nil)
	h(Packet{}, fmt.Errorf("protobuf: %w", ErrDecode))
	h(Packet{}, errors.New("read /dev/ttyACM0: input/output error"))

	if len(got) != 1 || got[0].Text != "/ack 1" {
		t.Fatalf("unexpected frames: %+v", got)
	}
	if len(drops) != 1 || len(faults) != 1 {
		t.Fatalf("unexpected classification drops=%v faults=%v", drops, faults)
	}
}

func TestGlobScannerOrdersByPattern(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	for _, name := range []string{"ttyUSB0", "ttyACM1", "ttyACM0"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	s := NewGlobScanner([]string{filepath.Join(dir, "ttyACM*"), filepath.Join(dir, "ttyUSB*")})
	paths, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(paths) != 3 || filepath.Base(paths[0]) != "ttyACM0" || filepath.Base(paths[2]) != "ttyUSB0" {
		t.Fatalf("unexpected scan order: %v", paths)
	}
	if !s.Exists(paths[0]) || s.Exists(filepath.Join(dir, "ttyACM9")) {
		t.Fatalf("unexpected existence checks")
	}
}

func TestPacketDelivered(t *testing.T) {
	testlog.Start(t)
	if !(Packet{Kind: PacketRouting}).Delivered() || !(Packet{ErrorReason: RoutingOK}).Delivered() {
		t.Fatalf("expected delivered")
	}
	if (Packet{ErrorReason: "MAX_RETRANSMIT"}).Delivered() {
		t.Fatalf("expected not delivered")
	}
}
