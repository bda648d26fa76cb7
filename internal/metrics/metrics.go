// Package metrics exposes the host process's Prometheus counters/gauges:
// frame I/O on both host transports, broadcast-bus fan-out health, staged-
// image validation outcomes, and upload pacing. Mirrors the structure of a
// typical promauto-based metrics package: package-level collectors, a
// handful of Inc/Set wrapper functions, a cheap local-atomic Snapshot for
// logging, and an HTTP server exposing /metrics and /ready.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/BrMisha/stm32-canbus-firmware-update/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters/gauges.
var (
	CANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN transport.",
	})
	CANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN transport.",
	})
	SerialRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_frames_total",
		Help: "Total CAN frames decoded from the serial-bridge transport.",
	})
	SerialTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_frames_total",
		Help: "Total CAN frames written to the serial-bridge transport.",
	})
	BusDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_dropped_frames_total",
		Help: "Total decoded frames dropped by the broadcast bus due to a full subscriber ring.",
	})
	BusLaggedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_lagged_subscribers_total",
		Help: "Total subscribers force-unsubscribed after falling behind the broadcast ring.",
	})
	BusActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bus_active_subscribers",
		Help: "Current number of active broadcast-bus subscribers.",
	})
	ValidatorAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pending_image_validated_total",
		Help: "Total staged images that validated successfully.",
	})
	ValidatorRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pending_image_rejected_total",
		Help: "Total staged images rejected (length guard, CRC mismatch, or erased region).",
	})
	UploadPartsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_parts_sent_total",
		Help: "Total firmware upload parts transmitted.",
	})
	UploadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_retries_total",
		Help: "Total upload send retries after a transient transport error.",
	})
	UploadPauseEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_pause_events_total",
		Help: "Total pause/resume transitions observed from the device during an upload.",
	})
	UploadPartLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upload_part_send_seconds",
		Help:    "Time to send one upload part, including retries but not the pacing delay.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (invalid length, unknown id, truncated payload).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrCANRead       = "can_read"
	ErrCANWrite      = "can_write"
	ErrSerialRead    = "serial_read"
	ErrSerialWrite   = "serial_write"
	ErrUploadRetry   = "upload_retry"
	ErrValidation    = "validation"
	ErrBusLagged     = "bus_lagged"
	ErrOrchestration = "orchestration"
)

// StartHTTP serves Prometheus metrics at /metrics on a fresh mux, plus a
// /ready endpoint driven by the registered readiness function.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process).
var (
	localCANRx       uint64
	localCANTx       uint64
	localSerialRx    uint64
	localSerialTx    uint64
	localBusDrop     uint64
	localBusLag      uint64
	localBusSubs     uint64
	localValidated   uint64
	localRejected    uint64
	localUploadParts uint64
	localRetries     uint64
	localPauses      uint64
	localErrors      uint64
	localMalformed   uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	CANRx        uint64
	CANTx        uint64
	SerialRx     uint64
	SerialTx     uint64
	BusDrops     uint64
	BusLagged    uint64
	BusSubs      uint64
	Validated    uint64
	Rejected     uint64
	UploadParts  uint64
	Retries      uint64
	PauseEvents  uint64
	Errors       uint64
	Malformed    uint64
}

func Snap() Snapshot {
	return Snapshot{
		CANRx:       atomic.LoadUint64(&localCANRx),
		CANTx:       atomic.LoadUint64(&localCANTx),
		SerialRx:    atomic.LoadUint64(&localSerialRx),
		SerialTx:    atomic.LoadUint64(&localSerialTx),
		BusDrops:    atomic.LoadUint64(&localBusDrop),
		BusLagged:   atomic.LoadUint64(&localBusLag),
		BusSubs:     atomic.LoadUint64(&localBusSubs),
		Validated:   atomic.LoadUint64(&localValidated),
		Rejected:    atomic.LoadUint64(&localRejected),
		UploadParts: atomic.LoadUint64(&localUploadParts),
		Retries:     atomic.LoadUint64(&localRetries),
		PauseEvents: atomic.LoadUint64(&localPauses),
		Errors:      atomic.LoadUint64(&localErrors),
		Malformed:   atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.

func IncCANRx() {
	CANRxFrames.Inc()
	atomic.AddUint64(&localCANRx, 1)
}

func IncCANTx() {
	CANTxFrames.Inc()
	atomic.AddUint64(&localCANTx, 1)
}

func IncSerialRx() {
	SerialRxFrames.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSerialTx() {
	SerialTxFrames.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

func IncBusDrop() {
	BusDroppedFrames.Inc()
	atomic.AddUint64(&localBusDrop, 1)
}

func IncBusLagged() {
	BusLaggedSubscribers.Inc()
	atomic.AddUint64(&localBusLag, 1)
}

func SetBusSubscribers(n int) {
	BusActiveSubscribers.Set(float64(n))
	atomic.StoreUint64(&localBusSubs, uint64(n))
}

func IncValidatorAccepted() {
	ValidatorAccepted.Inc()
	atomic.AddUint64(&localValidated, 1)
}

func IncValidatorRejected() {
	ValidatorRejected.Inc()
	atomic.AddUint64(&localRejected, 1)
}

func IncUploadPartsSent() {
	UploadPartsSent.Inc()
	atomic.AddUint64(&localUploadParts, 1)
}

func IncUploadRetries() {
	UploadRetries.Inc()
	atomic.AddUint64(&localRetries, 1)
}

func IncUploadPauseEvents() {
	UploadPauseEvents.Inc()
	atomic.AddUint64(&localPauses, 1)
}

func ObserveUploadPartLatency(seconds float64) {
	UploadPartLatency.Observe(seconds)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrCANRead, ErrCANWrite, ErrSerialRead, ErrSerialWrite,
		ErrUploadRetry, ErrValidation, ErrBusLagged, ErrOrchestration,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
