package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordRadioSend("msg", nil)
	RecordRadioSend("ack", errors.New("busy"))
	RecordRadioReceived("msg")
	RecordDelivery("acked")
	SetInFlight(true)
	SetInFlight(false)
	RecordLinkFailure("device_gone")

	SetLinkState("connected", []string{"disconnected", "connected"})
	if got := testutil.ToFloat64(linkState.WithLabelValues("connected")); got != 1 {
		t.Fatalf("connected gauge=%v", got)
	}
	if got := testutil.ToFloat64(linkState.WithLabelValues("disconnected")); got != 0 {
		t.Fatalf("disconnected gauge=%v", got)
	}
}
