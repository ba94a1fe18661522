package bitget

import (
	"testing"
	"time"

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
	raw := `{"data":[
		{"instrument_id":"cmt_btcusdt","price":"50000.0","side":"sell","size":"2","timestamp":"1621500000000","trade_id":"781463445287686144"},
		{"instrument_id":"cmt_btcusdt","price":"50001.0","side":"buy","size":"1","timestamp":"1621500000001","trade_id":"781463445287686145"}],
		"table":"swap/trade"}`
	trades, err := newParser().ParseTrade(models.LinearSwap, raw)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	tr := trades[0]
	assert.Equal(t, "BTC/USDT", tr.Pair)
	assert.Equal(t, models.Sell, tr.Side)
	assert.Equal(t, models.Buy, trades[1].Side)
	require.NotNil(t, tr.QuantityContract)
	assert.InDelta(t, 0.002, tr.QuantityBase, 1e-12)
	assert.InDelta(t, 100, tr.QuantityQuote, 1e-9)
	assert.Equal(t, int64(1621500000000), tr.Timestamp)
	assert.Equal(t, "781463445287686144", tr.TradeID)
}

func TestParseInverseTrade(t *testing.T) {
	raw := `{"data":[{"instrument_id":"btcusd","price":"50000","side":"buy","size":"100","timestamp":"1","trade_id":"1"}],"table":"swap/trade"}`
	trades, err := newParser().ParseTrade(models.InverseSwap, raw)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", trades[0].Pair)
	assert.InDelta(t, 100, trades[0].QuantityQuote, 1e-9)
	assert.InDelta(t, 0.002, trades[0].QuantityBase, 1e-12)
}

func TestParseFundingRate(t *testing.T) {
	defer func(f func() time.Time) { timeNow = f }(timeNow)
	timeNow = func() time.Time { return time.UnixMilli(1621500000000) }

	raw := `{"data":[{"funding_rate":"0.000100","funding_time":"1621584000000","instrument_id":"cmt_btcusdt"}],"table":"swap/funding_rate"}`
	rates, err := newParser().ParseFundingRate(models.LinearSwap, raw)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, 0.0001, rates[0].FundingRate)
	assert.Equal(t, int64(1621584000000), rates[0].FundingTime)
	assert.Equal(t, int64(1621500000000), rates[0].Timestamp)
}

func TestMalformedThenValid(t *testing.T) {
	p := newParser()
	_, err := p.ParseTrade(models.LinearSwap, `{"data":[{"instrument_id":"cmt_btcusdt","price":"1.2.3","side":"buy","size":"1","timestamp":"1"}],"table":"swap/trade"}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseTrade(models.LinearSwap, `{"event":"subscribe","channel":"swap/trade:cmt_btcusdt"}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseTrade(models.LinearSwap, `{"data":[{"instrument_id":"cmt_nosuchusdt","price":"1","side":"buy","size":"1","timestamp":"1"}],"table":"swap/trade"}`)
	assert.ErrorIs(t, err, parser.ErrUnrecognizedSymbol)

	trades, err := p.ParseTrade(models.LinearSwap, `{"data":[{"instrument_id":"cmt_ethusdt","price":"2000","side":"sell","size":"10","timestamp":"1","trade_id":"9"}],"table":"swap/trade"}`)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, trades[0].QuantityBase, 1e-12)
}

func TestUnsupported(t *testing.T) {
	_, err := newParser().ParseL2(models.LinearSwap, "{}")
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
}
