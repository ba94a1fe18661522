package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cryptonorm/internal/channel"
	"cryptonorm/internal/metrics"
	"cryptonorm/logger"
	"cryptonorm/models"
	"cryptonorm/parser"
	"cryptonorm/writer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config tunes a Dispatcher.
type Config struct {
	Workers        int
	ReportInterval time.Duration
}

// Dispatcher drains one route's raw channel, parses every frame with the
// route's parser and writes each record to every sink. A frame that fails to
// parse or a sink that fails to write is logged and counted; the stream
// continues.
type Dispatcher struct {
	routes   *Routes
	route    models.Route
	channels *channel.Channels
	sinks    []writer.Sink
	cfg      Config

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	log     *logger.Log

	frames      atomic.Int64
	records     atomic.Int64
	parseErrors atomic.Int64
	sinkErrors  atomic.Int64
}

// NewDispatcher fails when the route has no parser, so a misconfigured
// process never starts consuming.
func NewDispatcher(routes *Routes, route models.Route, ch *channel.Channels, sinks []writer.Sink, cfg Config) (*Dispatcher, error) {
	if err := routes.Validate(route); err != nil {
		return nil, err
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no sinks configured for %s", route)
	}
	if cfg.Workers < 1 || route.MsgType.Ordered() {
		cfg.Workers = 1
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 30 * time.Second
	}
	return &Dispatcher{
		routes:   routes,
		route:    route,
		channels: ch,
		sinks:    sinks,
		cfg:      cfg,
		log:      logger.GetLogger(),
	}, nil
}

// Start launches the workers and the stats reporter.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	reportCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	log := d.log.WithComponent("dispatcher").WithFields(d.fields())
	log.WithFields(logger.Fields{"workers": d.cfg.Workers, "sinks": len(d.sinks)}).Info("starting dispatcher")

	// Sink writes outlive ctx so frames already queued at shutdown are
	// still delivered.
	writeCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(writeCtx, i)
	}

	d.wg.Add(1)
	go d.metricsReporter(reportCtx)
	return nil
}

// Stop waits for the workers to drain the raw channel. The channel must be
// closed first.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel := d.cancel
	d.mu.Unlock()

	d.log.WithComponent("dispatcher").WithFields(d.fields()).Info("stopping dispatcher")
	cancel()
	d.wg.Wait()
	metrics.ReportPipeline(d.log, d.fields(), d.GetStats())
	d.log.WithComponent("dispatcher").Info("dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for frame := range d.channels.Raw {
		d.handle(ctx, frame)
	}
	d.log.WithComponent("dispatcher").WithFields(logger.Fields{"worker_id": id}).Debug("worker exited")
}

func (d *Dispatcher) handle(ctx context.Context, frame models.RawFrame) {
	route := frame.Route()
	d.frames.Add(1)
	metrics.IncFrame(route.Exchange, string(route.MarketType), string(route.MsgType))

	msgs, err := d.parse(route, frame.Payload)
	if err != nil {
		kind := parser.Kind(err)
		d.parseErrors.Add(1)
		metrics.IncParseError(route.Exchange, string(route.MarketType), string(route.MsgType), kind)
		d.log.WithComponent("dispatcher").WithError(err).WithFields(logger.Fields{
			"route":   route.String(),
			"kind":    kind,
			"payload": truncate(frame.Payload, 256),
		}).Warn("failed to parse frame")
		return
	}
	if len(msgs) == 0 {
		return
	}
	d.records.Add(int64(len(msgs)))
	metrics.AddRecords(route.Exchange, string(route.MarketType), string(route.MsgType), len(msgs))
	logger.LogDataFlowEntry(d.log.WithComponent("dispatcher"), route.Exchange, "sinks", len(msgs), string(route.MsgType))

	for _, msg := range msgs {
		line, err := json.Marshal(msg)
		if err != nil {
			d.log.WithComponent("dispatcher").WithError(err).WithFields(logger.Fields{"route": route.String()}).Error("failed to encode record")
			continue
		}
		for _, s := range d.sinks {
			if err := s.Write(ctx, msg, line); err != nil {
				d.sinkErrors.Add(1)
				metrics.IncSinkError(s.Name())
				d.log.WithComponent("dispatcher").WithError(err).WithFields(logger.Fields{
					"sink":  s.Name(),
					"route": route.String(),
				}).Error("sink write failed")
			}
		}
	}
}

func (d *Dispatcher) parse(route models.Route, payload string) ([]models.Message, error) {
	p, err := d.routes.Lookup(route)
	if err != nil {
		return nil, err
	}
	return Parse(p, route, payload)
}

func (d *Dispatcher) metricsReporter(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ReportPipeline(d.log, d.fields(), d.GetStats())
		}
	}
}

// GetStats returns the dispatcher's counters and the raw channel occupancy.
func (d *Dispatcher) GetStats() metrics.PipelineStats {
	ch := d.channels.GetStats()
	return metrics.PipelineStats{
		Frames:      d.frames.Load(),
		Records:     d.records.Load(),
		ParseErrors: d.parseErrors.Load(),
		SinkErrors:  d.sinkErrors.Load(),
		Dropped:     ch.RawDropped,
		RawLen:      len(d.channels.Raw),
		RawCap:      cap(d.channels.Raw),
	}
}

func (d *Dispatcher) fields() logger.Fields {
	return logger.Fields{
		"exchange":    d.route.Exchange,
		"market_type": string(d.route.MarketType),
		"msg_type":    string(d.route.MsgType),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
