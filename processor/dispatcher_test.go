package processor

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptonorm/internal/channel"
	"cryptonorm/models"
	"cryptonorm/writer"
)

type memorySink struct {
	mu    sync.Mutex
	name  string
	lines []string
	fail  error
}

func (s *memorySink) Name() string { return s.name }

func (s *memorySink) Write(_ context.Context, _ models.Message, line []byte) error {
	if s.fail != nil {
		return &writer.SinkError{Sink: s.name, Err: s.fail}
	}
	s.mu.Lock()
	s.lines = append(s.lines, string(line))
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error { return nil }

func frame(route models.Route, payload string) models.RawFrame {
	return models.RawFrame{Exchange: route.Exchange, MarketType: route.MarketType, MsgType: route.MsgType, Payload: payload}
}

const huobiTrade = `{"ch":"market.btcusdt.trade.detail","ts":1,"tick":{"id":1,"ts":1,"data":[{"ts":1620000000000,"tradeId":1,"amount":0.5,"price":50000.0,"direction":"buy"}]}}`

func TestDispatcherContinuesAfterBadFrames(t *testing.T) {
	route := models.Route{Exchange: "huobi", MarketType: models.Spot, MsgType: models.Trade}
	ch := channel.NewChannels(route, 8)
	good := &memorySink{name: "memory"}
	broken := &memorySink{name: "broken", fail: errors.New("connection reset")}

	d, err := NewDispatcher(testRoutes(), route, ch, []writer.Sink{good, broken}, Config{Workers: 2})
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Start(context.Background()))

	ctx := context.Background()
	require.True(t, ch.Send(ctx, frame(route, `{"ch":"market.btcusdt.trade.detail","tick":`)))
	require.True(t, ch.Send(ctx, frame(route, `{"ch":"market.foo.trade.detail","ts":1,"tick":{"data":[{"ts":1,"tradeId":1,"amount":1,"price":1,"direction":"buy"}]}}`)))
	require.True(t, ch.Send(ctx, frame(route, huobiTrade)))
	ch.Close()
	d.Stop()

	require.Len(t, good.lines, 1)
	line := good.lines[0]
	for _, want := range []string{`"pair":"BTC/USDT"`, `"side":"buy"`, `"quantity_quote":25000`, `"msg_type":"trade"`} {
		assert.True(t, strings.Contains(line, want), "missing %s in %s", want, line)
	}

	stats := d.GetStats()
	assert.Equal(t, int64(3), stats.Frames)
	assert.Equal(t, int64(1), stats.Records)
	assert.Equal(t, int64(2), stats.ParseErrors)
	assert.Equal(t, int64(1), stats.SinkErrors)
}

func TestDispatcherKeepsBookDeltaOrder(t *testing.T) {
	route := models.Route{Exchange: "kucoin", MarketType: models.Spot, MsgType: models.L2Event}
	ch := channel.NewChannels(route, 4)
	sink := &memorySink{name: "memory"}

	d, err := NewDispatcher(testRoutes(), route, ch, []writer.Sink{sink}, Config{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, 1, d.cfg.Workers)
	require.NoError(t, d.Start(context.Background()))

	const n = 50
	go func() {
		for i := 1; i <= n; i++ {
			payload := `{"type":"message","topic":"/market/level2:BTC-USDT","subject":"trade.l2update","data":{"changes":{"asks":[],"bids":[["` +
				strconv.Itoa(i) + `","1","` + strconv.Itoa(i) + `"]]},"sequenceEnd":` + strconv.Itoa(i) + `,"sequenceStart":` + strconv.Itoa(i) + `,"symbol":"BTC-USDT","time":` + strconv.Itoa(1700000000000+i) + `}}`
			ch.Deliver(context.Background(), frame(route, payload))
		}
		ch.Close()
	}()
	d.Stop()

	require.Len(t, sink.lines, n)
	for i, line := range sink.lines {
		assert.Contains(t, line, `"timestamp":`+strconv.Itoa(1700000000000+i+1))
	}
	assert.Equal(t, int64(0), d.GetStats().Dropped)
}

func TestNewDispatcherRejects(t *testing.T) {
	route := models.Route{Exchange: "zbg", MarketType: models.Spot, MsgType: models.FundingRate}
	ch := channel.NewChannels(route, 1)
	_, err := NewDispatcher(testRoutes(), route, ch, []writer.Sink{&memorySink{name: "m"}}, Config{})
	assert.Error(t, err)

	route.MsgType = models.Trade
	_, err = NewDispatcher(testRoutes(), route, ch, nil, Config{})
	assert.Error(t, err)
}
