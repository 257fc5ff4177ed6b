// Package metrics exposes Prometheus counters/gauges for the rosserial
// bridge: frames decoded/encoded, resync/checksum errors, registry size,
// adapter queue depth and drops, and control-topic activity (parameter
// requests, log forwards, TIME round-trips).
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ros-tools/rosserial-bridge/internal/logging"
)

var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_decoded_total",
		Help: "Total rosserial frames decoded from the serial link.",
	})
	FramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frames_encoded_total",
		Help: "Total rosserial frames encoded and queued for the serial link.",
	})
	DataFramesForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "data_frames_forwarded_total",
		Help: "Total non-control frames routed to a registered publisher.",
	})
	OutboundForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbound_frames_forwarded_total",
		Help: "Total network-side messages on subscribed topics received for delivery to the device.",
	})
	ResyncEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resync_events_total",
		Help: "Total times the decoder discarded bytes to resynchronize after an error.",
	})
	UnknownTopicEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unknown_topic_events_total",
		Help: "Total data frames received for a topic id with no registered publisher.",
	})
	RequestTopicsProbes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "request_topics_probes_total",
		Help: "Total times the request-topics probe was emitted (startup plus re-probes).",
	})
	ParameterRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parameter_requests_total",
		Help: "Total ID_PARAMETER_REQUEST frames served with an empty reply.",
	})
	LogRecordsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "log_records_forwarded_total",
		Help: "Total ID_LOG records forwarded to the host log sink, by severity.",
	}, []string{"level"})
	TimeRoundTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "time_round_trips_total",
		Help: "Total ID_TIME requests answered with the current wall time.",
	})
	UnsupportedControlIDs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unsupported_control_ids_total",
		Help: "Total frames received on an unsupported control id (service server/client), by id.",
	}, []string{"control_id"})
	RegisteredPublishers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registered_publishers",
		Help: "Current number of registered device publishers.",
	})
	RegisteredSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registered_subscribers",
		Help: "Current number of registered device subscribers.",
	})
	AdapterQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adapter_queue_depth",
		Help: "Observed queue depth for a subscribed topic's device-bound queue.",
	}, []string{"topic"})
	AdapterDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_dropped_messages_total",
		Help: "Total messages dropped by an adapter queue due to backpressure, by topic.",
	}, []string{"topic"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrSerialRead     = "serial_read"
	ErrSerialWrite    = "serial_write"
	ErrDecode         = "decode"
	ErrAdapterSend    = "adapter_send"
	ErrAdapterCreate  = "adapter_create"
	ErrParameterReply = "parameter_reply"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on the given address.
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

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap periodic logging without scraping
// Prometheus in-process.
var (
	localFramesDecoded  uint64
	localFramesEncoded  uint64
	localDataForwarded  uint64
	localOutboundFwd    uint64
	localResync         uint64
	localUnknownTopic   uint64
	localParameterReqs  uint64
	localTimeRoundTrips uint64
	localErrors         uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	FramesDecoded    uint64
	FramesEncoded    uint64
	DataForwarded    uint64
	OutboundForward  uint64
	ResyncEvents     uint64
	UnknownTopic     uint64
	ParameterReplies uint64
	TimeRoundTrips   uint64
	Errors           uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesDecoded:    atomic.LoadUint64(&localFramesDecoded),
		FramesEncoded:    atomic.LoadUint64(&localFramesEncoded),
		DataForwarded:    atomic.LoadUint64(&localDataForwarded),
		OutboundForward:  atomic.LoadUint64(&localOutboundFwd),
		ResyncEvents:     atomic.LoadUint64(&localResync),
		UnknownTopic:     atomic.LoadUint64(&localUnknownTopic),
		ParameterReplies: atomic.LoadUint64(&localParameterReqs),
		TimeRoundTrips:   atomic.LoadUint64(&localTimeRoundTrips),
		Errors:           atomic.LoadUint64(&localErrors),
	}
}

func IncFramesDecoded() {
	FramesDecoded.Inc()
	atomic.AddUint64(&localFramesDecoded, 1)
}

func IncFramesEncoded() {
	FramesEncoded.Inc()
	atomic.AddUint64(&localFramesEncoded, 1)
}

func IncDataForwarded() {
	DataFramesForwarded.Inc()
	atomic.AddUint64(&localDataForwarded, 1)
}

func IncOutboundForwarded() {
	OutboundForwarded.Inc()
	atomic.AddUint64(&localOutboundFwd, 1)
}

func IncResync() {
	ResyncEvents.Inc()
	atomic.AddUint64(&localResync, 1)
}

func IncUnknownTopic() {
	UnknownTopicEvents.Inc()
	atomic.AddUint64(&localUnknownTopic, 1)
}

func IncRequestTopicsProbe() { RequestTopicsProbes.Inc() }

func IncParameterRequest() {
	ParameterRequests.Inc()
	atomic.AddUint64(&localParameterReqs, 1)
}

func IncLogRecord(level string) { LogRecordsForwarded.WithLabelValues(level).Inc() }

func IncTimeRoundTrip() {
	TimeRoundTrips.Inc()
	atomic.AddUint64(&localTimeRoundTrips, 1)
}

func IncUnsupportedControlID(id int) {
	UnsupportedControlIDs.WithLabelValues(controlIDLabel(id)).Inc()
}

func SetRegisteredPublishers(n int)  { RegisteredPublishers.Set(float64(n)) }
func SetRegisteredSubscribers(n int) { RegisteredSubscribers.Set(float64(n)) }

func SetAdapterQueueDepth(topic string, n int) {
	AdapterQueueDepth.WithLabelValues(topic).Set(float64(n))
}
func IncAdapterDrop(topic string) { AdapterDrops.WithLabelValues(topic).Inc() }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge; call once at startup.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrSerialRead, ErrSerialWrite, ErrDecode, ErrAdapterSend, ErrAdapterCreate, ErrParameterReply} {
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

func controlIDLabel(id int) string {
	switch id {
	case 2:
		return "service_server"
	case 3:
		return "service_server_role"
	case 4:
		return "service_client"
	case 5:
		return "service_client_role"
	default:
		return "unknown"
	}
}
