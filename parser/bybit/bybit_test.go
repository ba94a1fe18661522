package bybit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptonorm/internal/contractvalue"
	"cryptonorm/internal/symbols"
	"cryptonorm/models"
	"cryptonorm/parser"
)

func newParser() *Parser {
	return New(parser.Deps{Pairs: symbols.NewNormalizer(nil), Contracts: contractvalue.Static()})
}

func TestParseLinearTrades(t *testing.T) {
	raw := `{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1672304486868,"data":[
		{"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","L":"PlusTick","i":"20f43950-d8dd-5b31-9112-a178eb6023af","BT":false},
		{"T":1672304486866,"s":"BTCUSDT","S":"Sell","v":"0.002","p":"16578.00","L":"MinusTick","i":"20f43950-d8dd-5b31-9112-a178eb6023b0","BT":false}]}`
	trades, err := newParser().ParseTrade(models.LinearSwap, raw)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, models.Sell, trades[1].Side)
	assert.Equal(t, "BTC/USDT", trades[0].Pair)
	assert.Equal(t, int64(1672304486865), trades[0].Timestamp)
	assert.Equal(t, "20f43950-d8dd-5b31-9112-a178eb6023af", trades[0].TradeID)
	for _, tr := range trades {
		assert.InDelta(t, tr.Price*tr.QuantityBase, tr.QuantityQuote, 1e-9)
	}
}

func TestParseInverseTrade(t *testing.T) {
	raw := `{"topic":"publicTrade.BTCUSD","type":"snapshot","ts":1,"data":[{"T":1,"s":"BTCUSD","S":"Sell","v":"1000","p":"50000","i":"x"}]}`
	trades, err := newParser().ParseTrade(models.InverseSwap, raw)
	require.NoError(t, err)
	tr := trades[0]
	assert.Equal(t, "BTC/USD", tr.Pair)
	assert.InDelta(t, 1000, tr.QuantityQuote, 1e-9)
	assert.InDelta(t, 0.02, tr.QuantityBase, 1e-12)
}

func TestParseOrderbook(t *testing.T) {
	p := newParser()
	snap := `{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1672304484978,"data":{"s":"BTCUSDT","b":[["16493.50","0.006"],["16493.00","0.100"]],"a":[["16611.00","0.029"],["16612.00","0.213"],["16610.00","1"]],"u":18521288,"seq":7961638724},"cts":1672304484976}`
	books, err := p.ParseL2(models.LinearSwap, snap)
	require.NoError(t, err)
	b := books[0]
	assert.True(t, b.Snapshot)
	assert.Equal(t, 16610.0, b.Asks[0].Price)
	for i := 1; i < len(b.Asks); i++ {
		assert.LessOrEqual(t, b.Asks[i-1].Price, b.Asks[i].Price)
	}
	assert.Equal(t, 16493.5, b.Bids[0].Price)

	delta := `{"topic":"orderbook.50.BTCUSDT","type":"delta","ts":1672304484979,"data":{"s":"BTCUSDT","b":[],"a":[["16611.00","0"]],"u":18521289,"seq":7961638725}}`
	books, err = p.ParseL2(models.LinearSwap, delta)
	require.NoError(t, err)
	assert.False(t, books[0].Snapshot)
	assert.Equal(t, 0.0, books[0].Asks[0].QuantityBase)
}

func TestMalformedThenValid(t *testing.T) {
	p := newParser()
	_, err := p.ParseL2(models.LinearSwap, `{"topic":"orderbook.50.BTCUSDT","type":"weird","ts":1,"data":{"s":"BTCUSDT","b":[],"a":[]}}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseTrade(models.LinearSwap, `{"topic":"publicTrade.BTCUSDT","data":[{"s":"BTCUSDT","S":"Buy","v":"","p":"1"}]}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseTrade(models.LinearSwap, `{"success":true,"ret_msg":"","op":"subscribe"}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)

	trades, err := p.ParseTrade(models.LinearSwap, `{"topic":"publicTrade.ETHUSDT","ts":1,"data":[{"T":1,"s":"ETHUSDT","S":"Buy","v":"2","p":"1000","i":"a"}]}`)
	require.NoError(t, err)
	assert.InDelta(t, 2000, trades[0].QuantityQuote, 1e-9)
}

func TestUnsupported(t *testing.T) {
	_, err := newParser().ParseTrade(models.Spot, "{}")
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
	_, err = newParser().ParseFundingRate(models.LinearSwap, "{}")
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
}
