package reader

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"cryptonorm/internal/channel"
	"cryptonorm/logger"
	"cryptonorm/models"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultKeepAlive      = 20 * time.Second
)

// WebsocketConfig describes one websocket connection.
type WebsocketConfig struct {
	URL            string
	Subscriptions  []string
	LocalIP        string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// WebsocketSource keeps one websocket connection open, answers venue pings,
// drops control frames and delivers every data frame to the raw channel.
// Reconnects are paced by a token bucket so a flapping endpoint is not
// hammered.
type WebsocketSource struct {
	route    models.Route
	cfg      WebsocketConfig
	channels *channel.Channels
	limiter  *rate.Limiter
	dialer   *websocket.Dialer

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	frames     atomic.Int64
	reconnects atomic.Int64
}

func NewWebsocketSource(route models.Route, cfg WebsocketConfig, ch *channel.Channels) *WebsocketSource {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultKeepAlive
	}
	dialer := &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: 10 * time.Second,
	}
	if cfg.LocalIP != "" {
		if ip := net.ParseIP(cfg.LocalIP); ip != nil {
			dialer.NetDialContext = (&net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}).DialContext
		}
	}
	return &WebsocketSource{
		route:    route,
		cfg:      cfg,
		channels: ch,
		limiter:  rate.NewLimiter(rate.Every(cfg.ReconnectDelay), 1),
		dialer:   dialer,
		log:      logger.GetLogger(),
	}
}

func (s *WebsocketSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("websocket source already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.log.WithComponent("websocket_source").WithFields(logger.Fields{
		"route":         s.route.String(),
		"url":           s.cfg.URL,
		"subscriptions": len(s.cfg.Subscriptions),
	}).Info("starting websocket source")

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop waits for the connection loop to exit; cancel the Start context first.
func (s *WebsocketSource) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.WithComponent("websocket_source").WithFields(logger.Fields{
		"route":      s.route.String(),
		"frames":     s.frames.Load(),
		"reconnects": s.reconnects.Load(),
	}).Info("websocket source stopped")
}

func (s *WebsocketSource) run() {
	defer s.wg.Done()
	log := s.log.WithComponent("websocket_source").WithFields(logger.Fields{"route": s.route.String()})

	for {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		err := s.session()
		if s.ctx.Err() != nil {
			return
		}
		s.reconnects.Add(1)
		log.WithError(err).WithFields(logger.Fields{"url": s.cfg.URL}).Warn("websocket session ended, reconnecting")
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (s *WebsocketSource) session() error {
	conn, _, err := s.dialer.DialContext(s.ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	for _, sub := range s.cfg.Subscriptions {
		if err := c.write(websocket.TextMessage, []byte(sub)); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	sessCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		// unblocks ReadMessage
		conn.Close()
	}()
	go s.pingLoop(sessCtx, c)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if kind == websocket.BinaryMessage {
			if data, err = inflate(data); err != nil {
				s.log.WithComponent("websocket_source").WithError(err).Warn("dropping undecodable binary frame")
				continue
			}
		}
		if reply := Reply(s.route.Exchange, data); reply != nil {
			if err := c.write(websocket.TextMessage, reply); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
			continue
		}
		if IsControl(s.route.Exchange, data) {
			s.log.WithComponent("websocket_source").WithFields(logger.Fields{"frame": string(data)}).Debug("control frame")
			continue
		}
		frame := models.RawFrame{
			Exchange:   s.route.Exchange,
			MarketType: s.route.MarketType,
			MsgType:    s.route.MsgType,
			Payload:    string(data),
			ReceivedAt: time.Now(),
		}
		if s.channels.Deliver(s.ctx, frame) {
			s.frames.Add(1)
			logger.RecordFlow("websocket", len(data))
		}
	}
}

func (s *WebsocketSource) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var err error
			if msg := keepalive(s.route.Exchange, now); msg != nil {
				err = c.write(websocket.TextMessage, msg)
			} else {
				err = c.ping()
			}
			if err != nil {
				s.log.WithComponent("websocket_source").WithError(err).Warn("failed to send websocket ping")
				return
			}
		}
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(kind, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}
