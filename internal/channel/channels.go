// Package channel carries raw frames from sources to the dispatcher.
package channel

import (
	"context"
	"sync/atomic"

	"cryptonorm/internal/metrics"
	"cryptonorm/logger"
	"cryptonorm/models"
)

type ChannelStats struct {
	RawSent    int64
	RawDropped int64
}

// Channels wraps the raw frame queue. Order-book routes must not lose frames,
// so Send blocks for them; every other route is sent with TrySend, which
// drops and counts when the queue is full.
type Channels struct {
	Raw chan models.RawFrame

	route   models.Route
	sent    atomic.Int64
	dropped atomic.Int64
	log     *logger.Log
}

func NewChannels(route models.Route, rawBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:   make(chan models.RawFrame, rawBufferSize),
		route: route,
		log:   log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"route":           route.String(),
		"raw_buffer_size": rawBufferSize,
	}).Info("raw channel initialized")

	return c
}

// Close must only be called once every producer has stopped.
func (c *Channels) Close() {
	close(c.Raw)
	c.log.WithComponent("channels").Info("raw channel closed")
}

// Deliver picks Send or TrySend depending on whether the route is ordered.
func (c *Channels) Deliver(ctx context.Context, frame models.RawFrame) bool {
	if frame.MsgType.Ordered() {
		return c.Send(ctx, frame)
	}
	return c.TrySend(ctx, frame)
}

// Send blocks until the frame is queued or ctx is done.
func (c *Channels) Send(ctx context.Context, frame models.RawFrame) bool {
	select {
	case c.Raw <- frame:
		c.sent.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// TrySend queues the frame if there is room and drops it otherwise.
func (c *Channels) TrySend(ctx context.Context, frame models.RawFrame) bool {
	select {
	case c.Raw <- frame:
		c.sent.Add(1)
		return true
	case <-ctx.Done():
		return false
	default:
		c.dropped.Add(1)
		metrics.EmitDropMetric(c.log, metrics.DropMetricRawFrame, frame.Exchange, string(frame.MarketType), string(frame.MsgType))
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	return ChannelStats{RawSent: c.sent.Load(), RawDropped: c.dropped.Load()}
}
