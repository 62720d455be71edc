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
			Namespace: "i2cmctp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests to the status server.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "i2cmctp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "frames_sent_total",
			Help:      "Frames written to the chardev socket.",
		},
		[]string{"local"},
	)
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the chardev socket, headers included.",
		},
		[]string{"local"},
	)
	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "send_failures_total",
			Help:      "Frame writes that failed.",
		},
		[]string{"local"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "frames_received_total",
			Help:      "Frames accepted and handed to the MCTP stack.",
		},
		[]string{"local"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "bytes_received_total",
			Help:      "Bytes of accepted frames, headers included.",
		},
		[]string{"local"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the receiver.",
		},
		[]string{"local", "reason"},
	)
	inboundErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "mctp",
			Name:      "inbound_errors_total",
			Help:      "Packets rejected by the MCTP stack.",
		},
		[]string{"local"},
	)
	fatalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "i2cmctp",
			Subsystem: "chardev",
			Name:      "fatal_errors_total",
			Help:      "Receive loops stopped by a fatal stream error.",
		},
		[]string{"local", "op"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesSent, bytesSent, sendFailures,
			framesReceived, bytesReceived, framesDropped,
			inboundErrors, fatalErrors,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameSent(local string, n int) {
	RegisterMetrics()
	framesSent.WithLabelValues(local).Inc()
	bytesSent.WithLabelValues(local).Add(float64(n))
}

func RecordSendFailure(local string) {
	RegisterMetrics()
	sendFailures.WithLabelValues(local).Inc()
}

func RecordFrameReceived(local string, n int) {
	RegisterMetrics()
	framesReceived.WithLabelValues(local).Inc()
	bytesReceived.WithLabelValues(local).Add(float64(n))
}

func RecordFrameDropped(local, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(local, reason).Inc()
}

func RecordInboundError(local string) {
	RegisterMetrics()
	inboundErrors.WithLabelValues(local).Inc()
}

func RecordFatal(local, op string) {
	RegisterMetrics()
	fatalErrors.WithLabelValues(local, op).Inc()
}
