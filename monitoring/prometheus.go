package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/custody/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const CallResultOK = "ok"

type custodyPromMetrics struct {
	upUnixSeconds  prometheus.Gauge
	callCount      *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	deniedCount    *prometheus.CounterVec
	eventCount     *prometheus.CounterVec
	droppedEvents  prometheus.Counter
	panicCount     prometheus.Counter
	nestedMaxDepth prometheus.Gauge
	rateLimited    prometheus.Counter
}

func newCustodyPromMetrics() *custodyPromMetrics {
	return &custodyPromMetrics{
		upUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "custody_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the process start",
			},
		),
		callCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custody_calls_total",
				Help: "The total number of program calls by operation and result code",
			},
			[]string{"op", "result"},
		),
		callDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "custody_call_duration_seconds",
				Help: "Duration in second of a top-level program call including commit",
			},
			[]string{"op"},
		),
		deniedCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custody_authorization_denied_total",
				Help: "The total number of calls rejected by an authorization predicate",
			},
			[]string{"op", "predicate"},
		),
		eventCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custody_events_published_total",
				Help: "The total number of published program events by topic",
			},
			[]string{"topic"},
		),
		droppedEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "custody_events_dropped_total",
				Help: "Events not delivered because a subscriber channel was full",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "custody_panic_count",
				Help: "The total number of recovered panics",
			},
		),
		nestedMaxDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "custody_nested_call_max_depth",
				Help: "Deepest nested call frame observed",
			},
		),
		rateLimited: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "custody_rpc_rate_limited_total",
				Help: "JSON-RPC requests rejected by the per-client rate limiter",
			},
		),
	}
}

var (
	metrics     *custodyPromMetrics
	metricsOnce sync.Once
	depthMu     sync.Mutex
	maxDepth    int
)

// InitMetrics registers the collectors once; later calls are no-ops
func InitMetrics() {
	metricsOnce.Do(func() {
		metrics = newCustodyPromMetrics()
		metrics.upUnixSeconds.SetToCurrentTime()
	})
}

func RegisterMetrics(mux *http.ServeMux) {
	InitMetrics()
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordCall(op, result string, duration time.Duration) {
	InitMetrics()
	metrics.callCount.With(prometheus.Labels{
		"op":     op,
		"result": result,
	}).Inc()
	metrics.callDuration.With(prometheus.Labels{"op": op}).Observe(duration.Seconds())
}

func RecordDenied(op, predicate string) {
	InitMetrics()
	metrics.deniedCount.With(prometheus.Labels{
		"op":        op,
		"predicate": predicate,
	}).Inc()
}

func RecordEvent(topic string) {
	InitMetrics()
	metrics.eventCount.With(prometheus.Labels{"topic": topic}).Inc()
}

func IncreaseDroppedEvents() {
	InitMetrics()
	metrics.droppedEvents.Inc()
}

func IncreasePanicCount() {
	InitMetrics()
	metrics.panicCount.Inc()
}

func ObserveCallDepth(depth int) {
	InitMetrics()
	depthMu.Lock()
	defer depthMu.Unlock()
	if depth > maxDepth {
		maxDepth = depth
		metrics.nestedMaxDepth.Set(float64(depth))
	}
}

func IncreaseRateLimited() {
	InitMetrics()
	metrics.rateLimited.Inc()
}
