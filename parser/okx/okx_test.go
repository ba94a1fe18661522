package okx

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

func TestParseSpotTrades(t *testing.T) {
	raw := `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[
		{"instId":"BTC-USDT","tradeId":"130639474","px":"42219.9","sz":"0.12060306","side":"buy","ts":"1630048897897"},
		{"instId":"BTC-USDT","tradeId":"130639475","px":"42219.8","sz":"0.1","side":"sell","ts":"1630048897898"}]}`
	trades, err := newParser().ParseTrade(models.Spot, raw)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, models.Buy, trades[0].Side)
	assert.Equal(t, models.Sell, trades[1].Side)
	assert.Equal(t, "BTC/USDT", trades[0].Pair)
	assert.Equal(t, "130639474", trades[0].TradeID)
	assert.Equal(t, int64(1630048897897), trades[0].Timestamp)
	for _, tr := range trades {
		assert.InDelta(t, tr.Price*tr.QuantityBase, tr.QuantityQuote, 1e-9)
		assert.Nil(t, tr.QuantityContract)
	}
}

func TestParseLinearSwapTrade(t *testing.T) {
	raw := `{"arg":{"channel":"trades","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","tradeId":"1","px":"50000","sz":"3","side":"sell","ts":"1"}]}`
	trades, err := newParser().ParseTrade(models.LinearSwap, raw)
	require.NoError(t, err)
	tr := trades[0]
	require.NotNil(t, tr.QuantityContract)
	assert.Equal(t, 3.0, *tr.QuantityContract)
	assert.InDelta(t, 0.03, tr.QuantityBase, 1e-12)
	assert.InDelta(t, 1500, tr.QuantityQuote, 1e-9)
}

func TestParseInverseSwapTrade(t *testing.T) {
	raw := `{"arg":{"channel":"trades","instId":"BTC-USD-SWAP"},"data":[{"instId":"BTC-USD-SWAP","tradeId":"2","px":"50000","sz":"4","side":"buy","ts":"1"}]}`
	trades, err := newParser().ParseTrade(models.InverseSwap, raw)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", trades[0].Pair)
	assert.InDelta(t, 400, trades[0].QuantityQuote, 1e-9)
	assert.InDelta(t, 0.008, trades[0].QuantityBase, 1e-12)
}

func TestParseBooks(t *testing.T) {
	p := newParser()
	snap := `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[{"asks":[["8477","1","0","1"],["8476.98","415","0","13"]],"bids":[["8476.97","256","0","12"]],"ts":"1597026383085","checksum":-855196043}]}`
	books, err := p.ParseL2(models.Spot, snap)
	require.NoError(t, err)
	b := books[0]
	assert.True(t, b.Snapshot)
	assert.Equal(t, 8476.98, b.Asks[0].Price)
	assert.Equal(t, 8477.0, b.Asks[1].Price)

	update := `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[{"asks":[["8477","0","0","0"]],"bids":[],"ts":"1597026383086","checksum":1}]}`
	books, err = p.ParseL2(models.Spot, update)
	require.NoError(t, err)
	assert.False(t, books[0].Snapshot)
	assert.Equal(t, 0.0, books[0].Asks[0].QuantityBase)
	assert.Equal(t, int64(1597026383086), books[0].Timestamp)

	top := `{"arg":{"channel":"books5","instId":"BTC-USDT"},"data":[{"asks":[["2","1","0","1"],["1","1","0","1"]],"bids":[],"instId":"BTC-USDT","ts":"5"}]}`
	books, err = p.ParseL2(models.Spot, top)
	require.NoError(t, err)
	assert.True(t, books[0].Snapshot)
	assert.Equal(t, 1.0, books[0].Asks[0].Price)
}

func TestParseFundingRate(t *testing.T) {
	raw := `{"arg":{"channel":"funding-rate","instId":"BTC-USD-SWAP"},"data":[{"fundingRate":"0.0001875391284828","fundingTime":"1700726400000","instId":"BTC-USD-SWAP","instType":"SWAP","nextFundingRate":"","ts":"1700712000000"}]}`
	rates, err := newParser().ParseFundingRate(models.InverseSwap, raw)
	require.NoError(t, err)
	r := rates[0]
	assert.Equal(t, "BTC/USD", r.Pair)
	assert.Equal(t, int64(1700726400000), r.FundingTime)
	assert.Equal(t, int64(1700712000000), r.Timestamp)
	assert.Nil(t, r.EstimatedRate)
	assert.InDelta(t, 0.0001875391284828, r.FundingRate, 1e-15)
}

func TestParseTicker(t *testing.T) {
	raw := `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"instType":"SPOT","instId":"BTC-USDT","last":"9999.99","lastSz":"0.1","askPx":"9999.99","askSz":"11","bidPx":"8888.88","bidSz":"5","open24h":"9000","high24h":"10000","low24h":"8888.88","volCcy24h":"2222","vol24h":"2","sodUtc0":"2222","sodUtc8":"2222","ts":"1597026383085"}]}`
	tickers, err := newParser().ParseTicker(models.Spot, raw)
	require.NoError(t, err)
	tk := tickers[0]
	assert.Equal(t, 9999.99, tk.Close)
	assert.Equal(t, 2.0, tk.Volume)
	assert.Equal(t, 2222.0, tk.QuoteVolume)
	require.NotNil(t, tk.BestBid)
	assert.Equal(t, 5.0, tk.BestBid.QuantityBase)
}

func TestMalformedThenValid(t *testing.T) {
	p := newParser()
	_, err := p.ParseTrade(models.Spot, `{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`+"}")
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseL2(models.Spot, `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"partial","data":[]}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)
	_, err = p.ParseTrade(models.Spot, `{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[]}`)
	assert.ErrorIs(t, err, parser.ErrMalformedPayload)

	trades, err := p.ParseTrade(models.Spot, `{"arg":{"channel":"trades","instId":"ETH-USDT"},"data":[{"instId":"ETH-USDT","tradeId":"9","px":"2000","sz":"1","side":"sell","ts":"1"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "ETH/USDT", trades[0].Pair)
}

func TestUnsupported(t *testing.T) {
	_, err := newParser().ParseFundingRate(models.Spot, "{}")
	assert.ErrorIs(t, err, parser.ErrUnsupportedMessageType)
	assert.False(t, newParser().Supports(models.InverseFuture, models.Trade))
}
