package parser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptonorm/internal/contractvalue"
	"cryptonorm/internal/symbols"
	"cryptonorm/models"
)

func TestNumberAcceptsStringsAndNumbers(t *testing.T) {
	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}
	require.NoError(t, Decode(`{"a":"50000.5","b":0.25}`, &v))
	assert.Equal(t, 50000.5, v.A.Float64())
	assert.Equal(t, 0.25, v.B.Float64())
	assert.True(t, v.A.IsSet())
}

func TestNumberRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`{"a":"abc"}`, `{"a":""}`, `{"a":true}`, `{"a":"1e"}`} {
		var v struct {
			A Number `json:"a"`
		}
		err := Decode(raw, &v)
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, ErrMalformedPayload, raw)
	}
}

func TestRequireReportsMissingField(t *testing.T) {
	var v struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}
	require.NoError(t, Decode(`{"a":1}`, &v))
	assert.ErrorIs(t, Require(v.A, v.B), ErrMalformedPayload)
	assert.NoError(t, Require(v.A))
}

func TestDecodeTruncatedJSON(t *testing.T) {
	var v map[string]interface{}
	err := Decode(`{"ch":"market.btcusdt`, &v)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSpotOrderQuote(t *testing.T) {
	o := SpotOrder(NewNumber(0.1), NewNumber(0.3))
	assert.InDelta(t, 0.03, o.QuantityQuote, 1e-12)
	assert.Nil(t, o.QuantityContract)
}

func TestQuantities(t *testing.T) {
	cv := 0.001
	base, quote, contracts := Quantities(models.LinearSwap, NewNumber(50000), NewNumber(20), &cv)
	require.NotNil(t, contracts)
	assert.Equal(t, 20.0, *contracts)
	assert.InDelta(t, 0.02, base, 1e-12)
	assert.InDelta(t, 1000, quote, 1e-9)

	hundred := 100.0
	base, quote, contracts = Quantities(models.InverseSwap, NewNumber(50000), NewNumber(10), &hundred)
	require.NotNil(t, contracts)
	assert.InDelta(t, 1000, quote, 1e-9)
	assert.InDelta(t, 0.02, base, 1e-12)

	base, quote, contracts = Quantities(models.Spot, NewNumber(2), NewNumber(3), nil)
	assert.Nil(t, contracts)
	assert.Equal(t, 3.0, base)
	assert.Equal(t, 6.0, quote)
}

func TestSortAsks(t *testing.T) {
	asks := []models.Order{{Price: 3}, {Price: 1}, {Price: 2}}
	SortAsks(asks)
	assert.Equal(t, []float64{1, 2, 3}, []float64{asks[0].Price, asks[1].Price, asks[2].Price})
}

func TestLevelsRejectsShortLevel(t *testing.T) {
	var levels []Level
	require.NoError(t, Decode(`[["1","2"],["3"]]`, &levels))
	_, err := Levels(levels, SpotOrder)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSideFallback(t *testing.T) {
	v := SideVocabulary{Exchange: "test", Sell: []string{"sell", "ask"}, Buy: []string{"buy", "bid"}}
	assert.Equal(t, models.Sell, v.Side("sell"))
	assert.Equal(t, models.Sell, v.Side("ASK"))
	assert.Equal(t, models.Buy, v.Side("buy"))
	assert.Equal(t, models.Buy, v.Side("bid"))
	assert.Equal(t, models.Buy, v.Side("mystery"))
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"unsupported_message_type": Unsupportedf("x", models.Spot, models.L3Event),
		"malformed_payload":        Malformedf("bad"),
		"unrecognized_symbol":      fmt.Errorf("wrapped: %w", symbols.ErrUnrecognizedSymbol),
		"unknown":                  errors.New("boom"),
		"":                         nil,
	}
	for want, err := range cases {
		assert.Equal(t, want, Kind(err))
	}
	assert.False(t, errors.Is(Malformedf("x"), ErrUnsupportedMessageType))
}

func TestUnsupportedDefaults(t *testing.T) {
	u := Unsupported{Name: "demo"}
	_, err := u.ParseL3(models.Spot, "{}")
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
	_, err = u.ParseTicker(models.Spot, "{}")
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
}

func TestDepsContractValue(t *testing.T) {
	d := Deps{Pairs: symbols.NewNormalizer(nil), Contracts: contractvalue.Static()}
	cv, err := d.ContractValue("kucoin", models.Spot, "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, cv)

	cv, err = d.ContractValue("kucoin", models.LinearSwap, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 0.001, *cv)

	_, err = d.ContractValue("kucoin", models.LinearSwap, "NOPE/USDT")
	assert.ErrorIs(t, err, ErrUnrecognizedSymbol)
}
