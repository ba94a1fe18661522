// Package processor turns raw frames into normalized records and hands them
// to the configured sinks.
package processor

import (
	"fmt"
	"sort"

	"cryptonorm/models"
	"cryptonorm/parser"
	"cryptonorm/parser/binance"
	"cryptonorm/parser/bitget"
	"cryptonorm/parser/bitmex"
	"cryptonorm/parser/bybit"
	"cryptonorm/parser/deribit"
	"cryptonorm/parser/huobi"
	"cryptonorm/parser/kucoin"
	"cryptonorm/parser/okx"
	"cryptonorm/parser/zbg"
)

// Routes maps an exchange name to its parser. It is built once at startup
// and only read afterwards.
type Routes struct {
	parsers map[string]parser.Parser
}

// NewRoutes registers every exchange parser with the shared lookup tables.
func NewRoutes(deps parser.Deps) *Routes {
	r := &Routes{parsers: make(map[string]parser.Parser)}
	for _, p := range []parser.Parser{
		huobi.New(deps),
		kucoin.New(deps),
		zbg.New(deps),
		binance.New(deps),
		okx.New(deps),
		bybit.New(deps),
		bitmex.New(deps),
		bitget.New(deps),
		deribit.New(deps),
	} {
		r.parsers[p.Exchange()] = p
	}
	return r
}

// Exchanges lists the registered exchange names in sorted order.
func (r *Routes) Exchanges() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the parser for route, or an error when the exchange is
// unknown or does not offer the route's market and message type.
func (r *Routes) Lookup(route models.Route) (parser.Parser, error) {
	p, ok := r.parsers[route.Exchange]
	if !ok {
		return nil, fmt.Errorf("%w: unknown exchange %q", parser.ErrUnsupportedMessageType, route.Exchange)
	}
	if err := parser.Check(p, route.MarketType, route.MsgType); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate is Lookup without the parser; main calls it before any source
// or sink is opened.
func (r *Routes) Validate(route models.Route) error {
	_, err := r.Lookup(route)
	return err
}

// Parse runs the parse operation matching the route's message type.
func Parse(p parser.Parser, route models.Route, raw string) ([]models.Message, error) {
	switch route.MsgType {
	case models.Trade:
		recs, err := p.ParseTrade(route.MarketType, raw)
		return collect(recs, err)
	case models.L2Event:
		recs, err := p.ParseL2(route.MarketType, raw)
		return collect(recs, err)
	case models.L3Event:
		recs, err := p.ParseL3(route.MarketType, raw)
		return collect(recs, err)
	case models.Ticker:
		recs, err := p.ParseTicker(route.MarketType, raw)
		return collect(recs, err)
	case models.FundingRate:
		recs, err := p.ParseFundingRate(route.MarketType, raw)
		return collect(recs, err)
	default:
		return nil, parser.Unsupportedf(p.Exchange(), route.MarketType, route.MsgType)
	}
}

func collect[T models.Message](recs []T, err error) ([]models.Message, error) {
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, len(recs))
	for i, rec := range recs {
		out[i] = rec
	}
	return out, nil
}
