package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Envelope kinds used as metric labels.
const (
	KindCommand   = "command"
	KindFileChunk = "file_chunk"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the relay.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chunkwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	transportSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkwire",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Envelopes sent by the transport.",
		},
		[]string{"format", "status", "success"},
	)
	transportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chunkwire",
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Round-trip time of one envelope send in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format", "status", "success"},
	)
	envelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkwire",
			Subsystem: "codec",
			Name:      "envelopes_total",
			Help:      "Envelopes built or parsed by the codec.",
		},
		[]string{"op", "kind"},
	)
	payloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chunkwire",
			Subsystem: "codec",
			Name:      "payload_bytes_total",
			Help:      "Plaintext bytes split or reconstructed.",
		},
		[]string{"op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			transportSends, transportDuration,
			envelopes, payloadBytes,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTransportSend counts one envelope round trip. status is 0 when the
// request never produced an HTTP response.
func RecordTransportSend(format string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	successLabel := strconv.FormatBool(success)
	transportSends.WithLabelValues(format, statusLabel, successLabel).Inc()
	transportDuration.WithLabelValues(format, statusLabel, successLabel).Observe(duration.Seconds())
}

func RecordEnvelopes(op, kind string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	envelopes.WithLabelValues(op, kind).Add(float64(n))
}

func RecordPayloadBytes(op string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	payloadBytes.WithLabelValues(op).Add(float64(n))
}
