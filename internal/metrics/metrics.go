// Package metrics exposes pipeline counters:
//
//	#cryptonorm_frames_total{exchange,market_type,msg_type}
//	#cryptonorm_records_total{exchange,market_type,msg_type}
//	#cryptonorm_parse_errors_total{exchange,market_type,msg_type,kind}
//	#cryptonorm_sink_errors_total{sink}
//	#cryptonorm_frames_dropped_total{exchange,market_type,msg_type}
//	#cryptonorm_side_fallback_total{exchange,token}
//
// Handler exposes them together with go_* and process_* collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptonorm/logger"
)

var (
	registry = prometheus.NewRegistry()

	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_frames_total",
		Help: "Raw frames received by the dispatcher",
	}, []string{"exchange", "market_type", "msg_type"})

	recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_records_total",
		Help: "Normalized records produced by parsers",
	}, []string{"exchange", "market_type", "msg_type"})

	parseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_parse_errors_total",
		Help: "Frames rejected by a parser, by error kind",
	}, []string{"exchange", "market_type", "msg_type", "kind"})

	sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_sink_errors_total",
		Help: "Failed sink writes",
	}, []string{"sink"})

	framesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_frames_dropped_total",
		Help: "Frames dropped because the raw channel was full",
	}, []string{"exchange", "market_type", "msg_type"})

	sideFallback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cryptonorm_side_fallback_total",
		Help: "Trades whose side token was neither a known buy nor sell token and was recorded as buy",
	}, []string{"exchange", "token"})
)

func init() {
	registry.MustRegister(framesTotal, recordsTotal, parseErrors, sinkErrors, framesDropped, sideFallback)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func IncFrame(exchange, market, msgType string) {
	framesTotal.WithLabelValues(exchange, market, msgType).Inc()
}

func AddRecords(exchange, market, msgType string, n int) {
	recordsTotal.WithLabelValues(exchange, market, msgType).Add(float64(n))
}

func IncParseError(exchange, market, msgType, kind string) {
	parseErrors.WithLabelValues(exchange, market, msgType, kind).Inc()
}

func IncSinkError(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

// IncSideFallback counts an unrecognized side token. The token label is
// truncated so a garbage feed cannot explode cardinality.
func IncSideFallback(exchange, token string) {
	if len(token) > 16 {
		token = token[:16]
	}
	sideFallback.WithLabelValues(exchange, token).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// PipelineStats is a point-in-time view of the dispatcher.
type PipelineStats struct {
	Frames      int64
	Records     int64
	ParseErrors int64
	SinkErrors  int64
	Dropped     int64
	RawLen      int
	RawCap      int
}

// ReportPipeline emits one gauge per field.
func ReportPipeline(log *logger.Log, route logger.Fields, stats PipelineStats) {
	EmitMetric(log, "dispatcher", "frames", stats.Frames, "counter", route)
	EmitMetric(log, "dispatcher", "records", stats.Records, "counter", route)
	EmitMetric(log, "dispatcher", "parse_errors", stats.ParseErrors, "counter", route)
	EmitMetric(log, "dispatcher", "sink_errors", stats.SinkErrors, "counter", route)
	EmitMetric(log, "dispatcher", "raw_channel_len", stats.RawLen, "gauge", route)

	entry := log.WithComponent("dispatcher").WithFields(route)
	entry.WithFields(logger.Fields{
		"frames":          stats.Frames,
		"records":         stats.Records,
		"parse_errors":    stats.ParseErrors,
		"sink_errors":     stats.SinkErrors,
		"dropped":         stats.Dropped,
		"raw_channel_len": stats.RawLen,
		"raw_channel_cap": stats.RawCap,
	}).Info("dispatcher stats")
}
