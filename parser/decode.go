package parser

import (
	"encoding/json"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"cryptonorm/models"
)

// Binance and others use keys that differ only in case ("e"/"E", "p"/"P"),
// so field matching must be exact.
var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// Decode unmarshals raw into v; any failure is an ErrMalformedPayload.
func Decode(raw string, v interface{}) error {
	if err := jsonAPI.UnmarshalFromString(raw, v); err != nil {
		return Malformedf("%v", err)
	}
	return nil
}

// DecodeBytes is Decode for byte slices.
func DecodeBytes(raw []byte, v interface{}) error {
	if err := jsonAPI.Unmarshal(raw, v); err != nil {
		return Malformedf("%v", err)
	}
	return nil
}

// Raw re-encodes v for the audit attachment of a normalized record.
func Raw(v interface{}) json.RawMessage {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// RawString returns the frame itself as the audit attachment.
func RawString(raw string) json.RawMessage {
	return json.RawMessage(strings.TrimSpace(raw))
}

// Level is a [price, size, ...] array with extra trailing fields ignored.
type Level []Number

func (l Level) Valid() bool { return len(l) >= 2 }

// SpotOrder builds an order whose quantity is already in base units.
func SpotOrder(price, qty Number) models.Order {
	return models.Order{
		Price:         price.Float64(),
		QuantityBase:  qty.Float64(),
		QuantityQuote: price.Decimal().Mul(qty.Decimal()).InexactFloat64(),
	}
}

// Quantities converts a size into base, quote and (for derivatives) contract
// quantities. A nil contract value means the size is already in base units.
//
// Linear contracts are worth cv base units; inverse contracts are worth cv
// quote units.
func Quantities(market models.MarketType, price, size Number, cv *float64) (base, quote float64, contracts *float64) {
	p, s := price.Decimal(), size.Decimal()
	if cv == nil {
		return s.InexactFloat64(), p.Mul(s).InexactFloat64(), nil
	}
	c := s.InexactFloat64()
	v := decimal.NewFromFloat(*cv)
	if market.IsInverse() {
		q := s.Mul(v)
		if p.IsZero() {
			return 0, q.InexactFloat64(), &c
		}
		return q.Div(p).InexactFloat64(), q.InexactFloat64(), &c
	}
	b := s.Mul(v)
	return b.InexactFloat64(), b.Mul(p).InexactFloat64(), &c
}

// DerivativeOrder builds an order, applying the contract value when given.
func DerivativeOrder(market models.MarketType, price, size Number, cv *float64) models.Order {
	base, quote, contracts := Quantities(market, price, size, cv)
	return models.Order{
		Price:            price.Float64(),
		QuantityBase:     base,
		QuantityQuote:    quote,
		QuantityContract: contracts,
	}
}

// ContractValue looks up the multiplier for derivative markets. It returns
// nil for spot and an ErrUnrecognizedSymbol error when a derivative pair has
// no known multiplier.
func (d Deps) ContractValue(exchange string, market models.MarketType, pair string) (*float64, error) {
	if !market.IsDerivative() {
		return nil, nil
	}
	v, ok := d.Contracts.Resolve(exchange, market, pair)
	if !ok {
		return nil, Unrecognizedf("no contract value for %s %s on %s", pair, market, exchange)
	}
	return &v, nil
}

// Unrecognizedf builds an ErrUnrecognizedSymbol error.
func Unrecognizedf(format string, args ...interface{}) error {
	return wrap(ErrUnrecognizedSymbol, format, args...)
}

// SortAsks orders asks by ascending price in place.
func SortAsks(asks []models.Order) {
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
}

// Levels converts wire levels to orders, rejecting short levels.
func Levels(levels []Level, build func(price, size Number) models.Order) ([]models.Order, error) {
	out := make([]models.Order, 0, len(levels))
	for i, l := range levels {
		if !l.Valid() {
			return nil, Malformedf("price level %d has %d fields", i, len(l))
		}
		out = append(out, build(l[0], l[1]))
	}
	return out, nil
}
