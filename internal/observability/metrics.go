package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshboard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshboard",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	radioSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshboard",
			Subsystem: "radio",
			Name:      "sends_total",
			Help:      "Radio text transmissions by command kind and result.",
		},
		[]string{"kind", "result"},
	)
	radioReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshboard",
			Subsystem: "radio",
			Name:      "received_total",
			Help:      "Received radio frames by outcome.",
		},
		[]string{"kind"},
	)
	radioDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshboard",
			Subsystem: "radio",
			Name:      "deliveries_total",
			Help:      "Tracked deliveries by outcome (acked, timeout, nak).",
		},
		[]string{"outcome"},
	)
	radioInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "meshboard",
			Subsystem: "radio",
			Name:      "inflight",
			Help:      "1 while a tracked delivery awaits its acknowledgement.",
		},
	)
	linkState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "meshboard",
			Subsystem: "link",
			Name:      "state",
			Help:      "Current link state (1 for the active state).",
		},
		[]string{"state"},
	)
	linkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshboard",
			Subsystem: "link",
			Name:      "failures_total",
			Help:      "Link failures by reason.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			radioSends,
			radioReceived,
			radioDeliveries,
			radioInFlight,
			linkState,
			linkFailures,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordRadioSend(kind string, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	radioSends.WithLabelValues(kind, result).Inc()
}

func RecordRadioReceived(kind string) {
	RegisterMetrics()
	radioReceived.WithLabelValues(kind).Inc()
}

func RecordDelivery(outcome string) {
	RegisterMetrics()
	radioDeliveries.WithLabelValues(outcome).Inc()
}

func SetInFlight(inFlight bool) {
	RegisterMetrics()
	if inFlight {
		radioInFlight.Set(1)
		return
	}
	radioInFlight.Set(0)
}

// SetLinkState marks state active and every other known state inactive.
func SetLinkState(state string, known []string) {
	RegisterMetrics()
	for _, s := range known {
		linkState.WithLabelValues(s).Set(0)
	}
	linkState.WithLabelValues(state).Set(1)
}

func RecordLinkFailure(reason string) {
	RegisterMetrics()
	linkFailures.WithLabelValues(reason).Inc()
}
