package reader

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptonorm/internal/channel"
	"cryptonorm/models"
)

func TestIsControl(t *testing.T) {
	tests := []struct {
		exchange string
		payload  string
		want     bool
	}{
		{"huobi", `{"ping":1492420473027}`, true},
		{"huobi", `{"id":"btcusdt","status":"ok","subbed":"market.btcusdt.trade.detail","ts":1}`, true},
		{"huobi", `{"ch":"market.btcusdt.trade.detail","ts":1,"tick":{}}`, false},
		{"huobi", `{"op":"notify","topic":"public.BTC-USD.funding_rate","data":[]}`, false},
		{"huobi", `{"op":"sub","cid":"1","topic":"public.BTC-USD.funding_rate","err-code":0}`, true},
		{"kucoin", `{"id":"hQvf8jkno","type":"welcome"}`, true},
		{"kucoin", `{"id":"1","type":"ack"}`, true},
		{"kucoin", `{"type":"message","topic":"/market/match:BTC-USDT","data":{}}`, false},
		{"zbg", `[["T","329","1616384937","BTC_USDT","bid","57000","0.01"]]`, false},
		{"zbg", `{"code":0}`, true},
		{"binance", `{"result":null,"id":1}`, true},
		{"binance", `{"e":"aggTrade","s":"BTCUSDT"}`, false},
		{"okx", `{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`, true},
		{"okx", `pong`, true},
		{"okx", `{"arg":{"channel":"trades"},"data":[]}`, false},
		{"bybit", `{"success":true,"ret_msg":"","op":"subscribe"}`, true},
		{"bybit", `{"topic":"publicTrade.BTCUSDT","data":[]}`, false},
		{"bitmex", `{"info":"Welcome to the BitMEX Realtime API."}`, true},
		{"bitmex", `{"table":"trade","action":"insert","data":[]}`, false},
		{"bitget", `{"event":"subscribe","channel":"swap/trade:cmt_btcusdt"}`, true},
		{"bitget", ``, true},
		{"deribit", `{"jsonrpc":"2.0","id":1,"result":["trades.BTC-PERPETUAL.raw"]}`, true},
		{"deribit", `{"jsonrpc":"2.0","id":2,"result":{"version":"1.2.26"}}`, true},
		{"deribit", `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"trades.BTC-PERPETUAL.raw","data":[]}}`, false},
	}
	for _, tt := range tests {
		if got := IsControl(tt.exchange, []byte(tt.payload)); got != tt.want {
			t.Errorf("IsControl(%s, %s) = %v, want %v", tt.exchange, tt.payload, got, tt.want)
		}
	}
}

func TestReply(t *testing.T) {
	assert.Equal(t, `{"pong":1492420473027}`, string(Reply("huobi", []byte(`{"ping":1492420473027}`))))
	assert.JSONEq(t, `{"op":"pong","ts":"1587182222"}`, string(Reply("huobi", []byte(`{"op":"ping","ts":"1587182222"}`))))
	assert.Nil(t, Reply("huobi", []byte(`{"ch":"x"}`)))
	assert.Nil(t, Reply("okx", []byte(`{"ping":1}`)))
}

func TestInflate(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err := w.Write([]byte(`{"ping":1}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	out, err := inflate(gz.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"ping":1}`, string(out))

	var fl bytes.Buffer
	fw, err := flate.NewWriter(&fl, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte(`{"event":"login"}`))
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	out, err = inflate(fl.Bytes())
	require.NoError(t, err)
	assert.Equal(t, `{"event":"login"}`, string(out))
}

func TestSubscribeFrames(t *testing.T) {
	frames, err := SubscribeFrames(models.Route{Exchange: "binance", MarketType: models.LinearSwap, MsgType: models.FundingRate}, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"method":"SUBSCRIBE","params":["btcusdt@markPrice","ethusdt@markPrice"],"id":1}`}, frames)

	frames, err = SubscribeFrames(models.Route{Exchange: "huobi", MarketType: models.Spot, MsgType: models.Trade}, []string{"btcusdt"})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"sub":"market.btcusdt.trade.detail","id":"btcusdt"}`}, frames)

	_, err = SubscribeFrames(models.Route{Exchange: "zbg", MarketType: models.Spot, MsgType: models.Trade}, []string{"btc_usdt"})
	assert.Error(t, err)
	_, err = SubscribeFrames(models.Route{Exchange: "okx", MarketType: models.Spot, MsgType: models.Trade}, nil)
	assert.Error(t, err)

	frames, err = SubscribeFrames(models.Route{Exchange: "deribit", MarketType: models.InverseSwap, MsgType: models.FundingRate}, []string{"BTC-PERPETUAL", "ETH-PERPETUAL"})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"jsonrpc":"2.0","id":1,"method":"public/subscribe","params":{"channels":["ticker.BTC-PERPETUAL.100ms","ticker.ETH-PERPETUAL.100ms"]}}`}, frames)
	_, err = SubscribeFrames(models.Route{Exchange: "deribit", MarketType: models.InverseSwap, MsgType: models.L3Event}, []string{"BTC-PERPETUAL"})
	assert.Error(t, err)

	assert.Equal(t, []string{"publicTrade.BTCUSDT"}, BybitTopics(models.Route{Exchange: "bybit", MsgType: models.Trade}, []string{"BTCUSDT"}))
}

func TestDefaultURL(t *testing.T) {
	u, err := DefaultURL(models.Route{Exchange: "huobi", MarketType: models.LinearSwap, MsgType: models.FundingRate})
	require.NoError(t, err)
	assert.Equal(t, "wss://api.hbdm.com/linear-swap-notification", u)

	u, err = DefaultURL(models.Route{Exchange: "deribit", MarketType: models.InverseFuture, MsgType: models.Trade})
	require.NoError(t, err)
	assert.Equal(t, "wss://www.deribit.com/ws/api/v2", u)

	_, err = DefaultURL(models.Route{Exchange: "kucoin", MarketType: models.Spot, MsgType: models.Trade})
	assert.Error(t, err)
}

func TestKeepaliveDeribit(t *testing.T) {
	msg := keepalive("deribit", time.UnixMilli(1616046412000))
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1616046412000,"method":"public/test","params":{}}`, string(msg))
	assert.True(t, IsControl("deribit", msg))
	assert.Nil(t, keepalive("huobi", time.Now()))
}

func TestReplaySource(t *testing.T) {
	route := models.Route{Exchange: "okx", MarketType: models.Spot, MsgType: models.Trade}
	ch := channel.NewChannels(route, 1)
	input := strings.NewReader("{\"event\":\"subscribe\"}\n\n{\"arg\":{},\"data\":[1]}\n{\"arg\":{},\"data\":[2]}\n")
	src := newReplayFromReader(route, input, ch)
	require.NoError(t, src.Start(context.Background()))

	var got []string
	for len(got) < 2 {
		f := <-ch.Raw
		assert.Equal(t, route, f.Route())
		got = append(got, f.Payload)
	}
	<-src.Done()
	src.Stop()
	require.NoError(t, src.Err())
	assert.Equal(t, []string{`{"arg":{},"data":[1]}`, `{"arg":{},"data":[2]}`}, got)
	assert.Equal(t, int64(2), src.Frames())
}

func TestReplaySourceMissingFile(t *testing.T) {
	route := models.Route{Exchange: "okx", MarketType: models.Spot, MsgType: models.Trade}
	src := NewReplaySource(route, t.TempDir()+"/missing.jsonl", channel.NewChannels(route, 1))
	assert.Error(t, src.Start(context.Background()))
}

func TestWebsocketSourceHuobi(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subs := make(chan string, 1)
	pongs := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		subs <- string(sub)

		send := func(payload string) {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte(payload))
			_ = gz.Close()
			_ = conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
		}
		send(`{"id":"btcusdt","status":"ok","subbed":"market.btcusdt.trade.detail","ts":1}`)
		send(`{"ping":42}`)
		_, pong, err := conn.ReadMessage()
		if err != nil {
			return
		}
		pongs <- string(pong)
		send(`{"ch":"market.btcusdt.trade.detail","ts":1,"tick":{"id":1,"ts":1,"data":[]}}`)

		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	route := models.Route{Exchange: "huobi", MarketType: models.Spot, MsgType: models.Trade}
	ch := channel.NewChannels(route, 4)
	src := NewWebsocketSource(route, WebsocketConfig{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http"),
		Subscriptions: []string{`{"sub":"market.btcusdt.trade.detail","id":"btcusdt"}`},
		PingInterval:  time.Hour,
	}, ch)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, src.Start(ctx))
	assert.Error(t, src.Start(ctx))

	select {
	case sub := <-subs:
		assert.Equal(t, `{"sub":"market.btcusdt.trade.detail","id":"btcusdt"}`, sub)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}
	select {
	case pong := <-pongs:
		assert.Equal(t, `{"pong":42}`, pong)
	case <-time.After(5 * time.Second):
		t.Fatal("no pong received")
	}
	select {
	case f := <-ch.Raw:
		assert.True(t, strings.HasPrefix(f.Payload, `{"ch":"market.btcusdt.trade.detail"`), f.Payload)
		assert.False(t, f.ReceivedAt.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
	}

	cancel()
	src.Stop()
	assert.Equal(t, 0, len(ch.Raw))
}

func TestBybitHandleAfterStopDoesNotDeliver(t *testing.T) {
	route := models.Route{Exchange: "bybit", MarketType: models.LinearSwap, MsgType: models.Trade}
	ch := channel.NewChannels(route, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewBybitSource(route, "", []string{"publicTrade.BTCUSDT"}, ch)
	s.ctx = ctx
	s.running = true

	go func() {
		for range ch.Raw {
		}
	}()

	msg := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1,"data":[]}`
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.handle(msg)
			}
		}()
	}

	time.Sleep(time.Millisecond)
	cancel()
	s.Stop()
	ch.Close()
	wg.Wait()

	assert.NoError(t, s.handle(msg))
	assert.Equal(t, int64(0), ch.GetStats().RawSent-s.frames.Load())
}
