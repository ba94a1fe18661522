package reader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"cryptonorm/internal/channel"
	"cryptonorm/logger"
	"cryptonorm/models"
)

// BybitSource subscribes to Bybit v5 public topics through the official SDK,
// which owns the connection and its heartbeat.
type BybitSource struct {
	route    models.Route
	url      string
	topics   []string
	channels *channel.Channels

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	frames atomic.Int64
}

func NewBybitSource(route models.Route, url string, topics []string, ch *channel.Channels) *BybitSource {
	return &BybitSource{
		route:    route,
		url:      url,
		topics:   topics,
		channels: ch,
		log:      logger.GetLogger(),
	}
}

func (s *BybitSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("bybit source already running")
	}
	if len(s.topics) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("bybit source has no topics")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.log.WithComponent("bybit_source").WithFields(logger.Fields{
		"route":  s.route.String(),
		"url":    s.url,
		"topics": s.topics,
	}).Info("starting bybit source")

	s.wg.Add(1)
	go s.stream()
	return nil
}

// Stop waits for in-flight handler calls; none deliver once it returns, so
// the raw channel may be closed afterwards. Cancel the Start context first.
func (s *BybitSource) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.WithComponent("bybit_source").WithFields(logger.Fields{
		"route":  s.route.String(),
		"frames": s.frames.Load(),
	}).Info("bybit source stopped")
}

// handle runs on the SDK's read goroutine, which Disconnect does not join.
func (s *BybitSource) handle(message string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil
	}
	if IsControl(s.route.Exchange, []byte(message)) {
		return nil
	}
	frame := models.RawFrame{
		Exchange:   s.route.Exchange,
		MarketType: s.route.MarketType,
		MsgType:    s.route.MsgType,
		Payload:    message,
		ReceivedAt: time.Now(),
	}
	if s.channels.Deliver(s.ctx, frame) {
		s.frames.Add(1)
		logger.RecordFlow("websocket", len(message))
	} else if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	return nil
}

func (s *BybitSource) stream() {
	defer s.wg.Done()

	ws := bybit.NewBybitPublicWebSocket(s.url, s.handle)
	ws.Connect().SendSubscription(s.topics)

	<-s.ctx.Done()
	ws.Disconnect()
}
