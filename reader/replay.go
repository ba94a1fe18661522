package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"cryptonorm/internal/channel"
	"cryptonorm/logger"
	"cryptonorm/models"
)

const maxReplayLine = 16 << 20

// ReplaySource feeds recorded frames, one per line, into the raw channel.
// Every frame is sent blocking so a replay never loses data. Done is closed
// once the input is exhausted.
type ReplaySource struct {
	route    models.Route
	path     string
	input    io.Reader
	channels *channel.Channels

	done    chan struct{}
	err     error
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log

	frames atomic.Int64
}

// NewReplaySource reads path, or standard input when path is "-".
func NewReplaySource(route models.Route, path string, ch *channel.Channels) *ReplaySource {
	return &ReplaySource{
		route:    route,
		path:     path,
		channels: ch,
		done:     make(chan struct{}),
		log:      logger.GetLogger(),
	}
}

func newReplayFromReader(route models.Route, r io.Reader, ch *channel.Channels) *ReplaySource {
	s := NewReplaySource(route, "", ch)
	s.input = r
	return s
}

func (s *ReplaySource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("replay source already running")
	}

	input := s.input
	var closer io.Closer
	if input == nil {
		if s.path == "-" {
			input = os.Stdin
		} else {
			f, err := os.Open(s.path)
			if err != nil {
				return fmt.Errorf("open replay file: %w", err)
			}
			input, closer = f, f
		}
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		if closer != nil {
			defer closer.Close()
		}
		s.err = s.replay(ctx, input)
	}()
	return nil
}

func (s *ReplaySource) replay(ctx context.Context, input io.Reader) error {
	log := s.log.WithComponent("replay_source").WithFields(logger.Fields{"route": s.route.String(), "path": s.path})
	log.Info("replaying frames")

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplayLine)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || IsControl(s.route.Exchange, scanner.Bytes()) {
			continue
		}
		frame := models.RawFrame{
			Exchange:   s.route.Exchange,
			MarketType: s.route.MarketType,
			MsgType:    s.route.MsgType,
			Payload:    line,
			ReceivedAt: time.Now(),
		}
		if !s.channels.Send(ctx, frame) {
			return ctx.Err()
		}
		s.frames.Add(1)
		logger.RecordFlow("replay", len(line))
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("replay read failed")
		return err
	}
	log.WithFields(logger.Fields{"frames": s.frames.Load()}).Info("replay finished")
	return nil
}

// Done is closed when the replay has finished or failed.
func (s *ReplaySource) Done() <-chan struct{} { return s.done }

// Err is the replay's terminal error; valid after Done is closed.
func (s *ReplaySource) Err() error { return s.err }

func (s *ReplaySource) Frames() int64 { return s.frames.Load() }

func (s *ReplaySource) Stop() {
	s.wg.Wait()
}
