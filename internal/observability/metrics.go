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
			Namespace: "qlang",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"device", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qlang",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"device", "method", "path", "status"},
	)
	instructions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qlang",
			Subsystem: "device",
			Name:      "instructions_total",
			Help:      "Instructions handled by the device executor.",
		},
		[]string{"device", "operation", "status"},
	)
	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qlang",
			Subsystem: "device",
			Name:      "execution_duration_seconds",
			Help:      "Operation execution duration in seconds.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"device", "operation"},
	)
	wireMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qlang",
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Wire messages moved over the device transport.",
		},
		[]string{"device", "kind", "direction"},
	)
	wireBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qlang",
			Subsystem: "transport",
			Name:      "bytes_total",
			Help:      "Wire bytes moved over the device transport.",
		},
		[]string{"device", "direction"},
	)
	benchMessageSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qlang",
			Subsystem: "bench",
			Name:      "message_size_bytes",
			Help:      "Encoded size of the benchmark instruction per protocol.",
		},
		[]string{"protocol"},
	)
	benchCodecSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qlang",
			Subsystem: "bench",
			Name:      "codec_seconds",
			Help:      "Average per-call codec time per protocol and phase.",
		},
		[]string{"protocol", "phase"},
	)
	benchThroughput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "qlang",
			Subsystem: "bench",
			Name:      "throughput_messages_per_second",
			Help:      "Encode throughput per protocol.",
		},
		[]string{"protocol"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			instructions, executionDuration,
			wireMessages, wireBytes,
			benchMessageSize, benchCodecSeconds, benchThroughput,
		)
	})
}

func RecordHTTPRequest(device, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(device, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(device, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordInstruction(device, operation, status string, duration time.Duration) {
	RegisterMetrics()
	instructions.WithLabelValues(device, operation, status).Inc()
	if operation != "" {
		executionDuration.WithLabelValues(device, operation).Observe(duration.Seconds())
	}
}

func RecordWireMessage(device, kind, direction string, size int) {
	RegisterMetrics()
	wireMessages.WithLabelValues(device, kind, direction).Inc()
	wireBytes.WithLabelValues(device, direction).Add(float64(size))
}

func RecordBenchResult(protocol string, size int, ser, deser time.Duration, throughput float64) {
	RegisterMetrics()
	benchMessageSize.WithLabelValues(protocol).Set(float64(size))
	benchCodecSeconds.WithLabelValues(protocol, "serialize").Set(ser.Seconds())
	benchCodecSeconds.WithLabelValues(protocol, "deserialize").Set(deser.Seconds())
	benchThroughput.WithLabelValues(protocol).Set(throughput)
}
