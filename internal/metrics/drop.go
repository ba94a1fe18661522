package metrics

import "cryptonorm/logger"

// DropMetric names the metric emitted when a bounded channel is full.
type DropMetric string

const (
	// DropMetricRawFrame counts frames a source could not hand to the dispatcher.
	DropMetricRawFrame DropMetric = "raw_frames_dropped"
)

// EmitDropMetric emits a single drop for the given route.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, market, msgType string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if market != "" {
		fields["market"] = market
	}
	if msgType != "" {
		fields["msg_type"] = msgType
	}
	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
	framesDropped.WithLabelValues(exchange, market, msgType).Inc()
}
