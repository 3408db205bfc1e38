package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-vpw-gateway/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	BusRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpw_rx_frames_total",
		Help: "Total frames received from the VPW bus.",
	})
	BusRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpw_rx_bytes_total",
		Help: "Total bytes received from the VPW bus (CRC included).",
	})
	BusTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpw_tx_frames_total",
		Help: "Total frames transmitted on the VPW bus.",
	})
	BusNoData = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vpw_no_data_total",
		Help: "Receive windows that ended without a start of frame.",
	})
	BusErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpw_bus_errors_total",
		Help: "Bus errors by reason (glitch, collision, bus_busy, ...).",
	}, []string{"reason"})
	ConsoleTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_tx_frames_total",
		Help: "Total frames echoed to the serial console.",
	})
	ConsoleRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_rx_frames_total",
		Help: "Total frames typed on the serial console.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total frames sent to TCP clients.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued frames among clients since last sample window.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued frames per client in last sample.",
	})
	DashReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dash_readings_total",
		Help: "Recognized dashboard readings by kind.",
	}, []string{"kind"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_lines_total",
		Help: "Total rejected text lines (bad hex, invalid length, too long).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead         = "tcp_read"
	ErrTCPWrite        = "tcp_write"
	ErrHandshake       = "handshake"
	ErrBusRx           = "bus_rx"
	ErrBusTx           = "bus_tx"
	ErrBusCRC          = "bus_crc"
	ErrTxOverflow      = "bus_tx_overflow"
	ErrConsoleRead     = "console_read"
	ErrConsoleWrite    = "console_write"
	ErrConsoleOverflow = "console_tx_overflow"
	ErrDisplay         = "display"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
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

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localBusRx      uint64
	localBusRxBytes uint64
	localBusTx      uint64
	localNoData     uint64
	localBusErrors  uint64
	localConsoleTx  uint64
	localConsoleRx  uint64
	localTCPRx      uint64
	localTCPTx      uint64
	localHubDrop    uint64
	localHubKick    uint64
	localHubReject  uint64
	localErrors     uint64
	localHubClients uint64
	localFanout     uint64
	localMalformed  uint64
	localQDMax      uint64
	localQDAvg      uint64
	localReadings   uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	BusRx         uint64
	BusRxBytes    uint64
	BusTx         uint64
	NoData        uint64
	BusErrors     uint64 // sum across reasons
	ConsoleTx     uint64
	ConsoleRx     uint64
	TCPRx         uint64
	TCPTx         uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	Malformed     uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
	DashReadings  uint64
}

func Snap() Snapshot {
	return Snapshot{
		BusRx:         atomic.LoadUint64(&localBusRx),
		BusRxBytes:    atomic.LoadUint64(&localBusRxBytes),
		BusTx:         atomic.LoadUint64(&localBusTx),
		NoData:        atomic.LoadUint64(&localNoData),
		BusErrors:     atomic.LoadUint64(&localBusErrors),
		ConsoleTx:     atomic.LoadUint64(&localConsoleTx),
		ConsoleRx:     atomic.LoadUint64(&localConsoleRx),
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		Malformed:     atomic.LoadUint64(&localMalformed),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
		DashReadings:  atomic.LoadUint64(&localReadings),
	}
}

// IncBusRx counts one received frame of n bytes.
func IncBusRx(n int) {
	BusRxFrames.Inc()
	BusRxBytes.Add(float64(n))
	atomic.AddUint64(&localBusRx, 1)
	atomic.AddUint64(&localBusRxBytes, uint64(n))
}

func IncBusTx() {
	BusTxFrames.Inc()
	atomic.AddUint64(&localBusTx, 1)
}

func IncNoData() {
	BusNoData.Inc()
	atomic.AddUint64(&localNoData, 1)
}

// IncBusError counts a bus error under its reason label.
func IncBusError(reason string) {
	BusErrors.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localBusErrors, 1)
}

func IncConsoleTx() {
	ConsoleTxFrames.Inc()
	atomic.AddUint64(&localConsoleTx, 1)
}

func IncConsoleRx() {
	ConsoleRxFrames.Inc()
	atomic.AddUint64(&localConsoleRx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncDashReading(kind string) {
	DashReadings.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localReadings, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedLines.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrBusRx, ErrBusTx, ErrBusCRC, ErrTxOverflow,
		ErrConsoleRead, ErrConsoleWrite, ErrConsoleOverflow,
		ErrDisplay,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// RegisterLabels pre-creates the reason and kind series so dashboards see
// zeros instead of gaps.
func RegisterLabels(reasons, kinds []string) {
	for _, r := range reasons {
		BusErrors.WithLabelValues(r).Add(0)
	}
	for _, k := range kinds {
		DashReadings.WithLabelValues(k).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
