package zbg

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

func TestParseSingleTrade(t *testing.T) {
	trades, err := newParser().ParseTrade(models.Spot, `["T","329","1603766285","BTC_USDT","ask","13212.2","0.0011"]`)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "BTC/USDT", tr.Pair)
	assert.Equal(t, "BTC_USDT", tr.Symbol)
	assert.Equal(t, models.Sell, tr.Side)
	assert.Equal(t, int64(1603766285000), tr.Timestamp)
	assert.Equal(t, "1603766285000", tr.TradeID)
	assert.InDelta(t, 13212.2*0.0011, tr.QuantityQuote, 1e-9)
}

func TestParseTradeBatch(t *testing.T) {
	raw := `[["T","329","1603766285","BTC_USDT","bid","13212.2","0.0011"],["T","329",1603766286,"BTC_USDT","ask",13213,0.5]]`
	trades, err := newParser().ParseTrade(models.Spot, raw)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, models.Sell, trades[1].Side)
	assert.Equal(t, int64(1603766286000), trades[1].Timestamp)
	for _, tr := range trades {
		assert.InDelta(t, tr.Price*tr.QuantityBase, tr.QuantityQuote, 1e-9)
	}
}

func TestParseL2Snapshot(t *testing.T) {
	raw := `[["AE","329","BTC_USDT","1603766285",{"asks":[["13215","1"],["13213.4","0.5"],[13214,2]]},{"bids":[["13210","0.3"],[13209,"1.2"]]}]]`
	books, err := newParser().ParseL2(models.Spot, raw)
	require.NoError(t, err)
	require.Len(t, books, 1)
	b := books[0]
	assert.True(t, b.Snapshot)
	assert.Equal(t, int64(1603766285000), b.Timestamp)
	require.Len(t, b.Asks, 3)
	for i := 1; i < len(b.Asks); i++ {
		assert.LessOrEqual(t, b.Asks[i-1].Price, b.Asks[i].Price)
	}
	assert.Equal(t, 13210.0, b.Bids[0].Price)
	assert.Equal(t, 1.2, b.Bids[1].QuantityBase)
}

func TestParseL2Delta(t *testing.T) {
	p := newParser()
	books, err := p.ParseL2(models.Spot, `["E","329","1603766285","BTC_USDT","BID","13210","0.3"]`)
	require.NoError(t, err)
	b := books[0]
	assert.False(t, b.Snapshot)
	require.Len(t, b.Bids, 1)
	assert.Empty(t, b.Asks)
	assert.Equal(t, 0.3, b.Bids[0].QuantityBase)

	books, err = p.ParseL2(models.Spot, `["E","329","1603766285","BTC_USDT","ASK","13213","0"]`)
	require.NoError(t, err)
	require.Len(t, books[0].Asks, 1)
	assert.Equal(t, 0.0, books[0].Asks[0].QuantityBase)
	assert.Empty(t, books[0].Bids)
}

func TestMalformedThenValid(t *testing.T) {
	p := newParser()
	for _, raw := range []string{
		`["T","329","1603766285","BTC_USDT"`,
		`["T","329","1603766285","BTC_USDT","ask","abc","1"]`,
		`["X","329"]`,
		`[]`,
	} {
		_, err := p.ParseTrade(models.Spot, raw)
		assert.ErrorIs(t, err, parser.ErrMalformedPayload, raw)
	}
	_, err := p.ParseL2(models.Spot, `[["AE","329","BTC_USDT","1603766285",{"asks":[["1"]]},{"bids":[]}]]`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)

	trades, err := p.ParseTrade(models.Spot, `["T","329","1603766285","ETH_USDT","bid","400","2"]`)
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDT", trades[0].Pair)
}

func TestUnsupported(t *testing.T) {
	_, err := newParser().ParseTrade(models.LinearSwap, `[]`)
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
	_, err = newParser().ParseTicker(models.Spot, `[]`)
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
}
