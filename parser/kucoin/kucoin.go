// Package kucoin parses KuCoin spot and futures frames.
package kucoin

import (
	"strings"
	"time"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "kucoin"

var (
	sides = parser.SideVocabulary{Exchange: Name, Sell: []string{"sell"}, Buy: []string{"buy"}}

	timeNow = time.Now
)

type Parser struct {
	parser.Unsupported
	parser.Capabilities
	deps parser.Deps
}

func New(deps parser.Deps) *Parser {
	return &Parser{
		Unsupported: parser.Unsupported{Name: Name},
		Capabilities: parser.Capabilities{
			models.Spot:          {models.Trade, models.L2Event},
			models.InverseSwap:   {models.Trade},
			models.LinearSwap:    {models.Trade},
			models.InverseFuture: {models.Trade},
		},
		deps: deps,
	}
}

type envelope[T any] struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
	Data    T      `json:"data"`
}

type matchData struct {
	Symbol   string        `json:"symbol"`
	Sequence parser.Number `json:"sequence"`
	Side     string        `json:"side"`
	Size     parser.Number `json:"size"`
	Price    parser.Number `json:"price"`
	TradeID  string        `json:"tradeId"`
	// spot sends time, futures sends ts; both in nanoseconds
	Time parser.Number `json:"time"`
	Ts   parser.Number `json:"ts"`
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	var msg envelope[matchData]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Type != "message" || (msg.Subject != "trade.l3match" && msg.Subject != "match") {
		return nil, parser.Malformedf("not a match message: type=%q subject=%q", msg.Type, msg.Subject)
	}
	d := msg.Data
	if err := parser.Require(d.Price, d.Size); err != nil {
		return nil, err
	}
	nanos := d.Time
	if !nanos.IsSet() {
		nanos = d.Ts
	}
	if !nanos.IsSet() {
		return nil, parser.Malformedf("match without time")
	}

	pair, err := p.deps.Pair(d.Symbol, Name)
	if err != nil {
		return nil, err
	}
	cv, err := p.deps.ContractValue(Name, market, pair)
	if err != nil {
		return nil, err
	}
	base, quote, contracts := parser.Quantities(market, d.Price, d.Size, cv)

	// sequence is unique per symbol on both spot and futures
	tradeID := d.Sequence.String()
	if !d.Sequence.IsSet() {
		tradeID = d.TradeID
	}
	return []*models.TradeMsg{{
		Exchange:         Name,
		MarketType:       market,
		Symbol:           d.Symbol,
		Pair:             pair,
		MsgType:          models.Trade,
		Timestamp:        nanos.Int64() / int64(time.Millisecond),
		Price:            d.Price.Float64(),
		QuantityBase:     base,
		QuantityQuote:    quote,
		QuantityContract: contracts,
		Side:             sides.Side(d.Side),
		TradeID:          tradeID,
		Raw:              parser.RawString(raw),
	}}, nil
}

type bookData struct {
	Symbol  string `json:"symbol"`
	Time    int64  `json:"time"`
	Changes *struct {
		Asks []parser.Level `json:"asks"`
		Bids []parser.Level `json:"bids"`
	} `json:"changes"`
	// depth snapshot topics (/spotMarket/level2Depth5, level2Depth50)
	Asks      []parser.Level `json:"asks"`
	Bids      []parser.Level `json:"bids"`
	Timestamp int64          `json:"timestamp"`
}

// ParseL2 tells the two shapes apart by where the levels live: deltas nest
// them under data.changes, depth snapshots put them directly on data.
//
// trade.l2update frames carry no event time on older API versions; those fall
// back to the local receipt time.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	var msg envelope[bookData]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	d := msg.Data

	var (
		asksWire, bidsWire []parser.Level
		snapshot           bool
		ts                 int64
	)
	switch {
	case d.Changes != nil:
		asksWire, bidsWire = d.Changes.Asks, d.Changes.Bids
		ts = d.Time
	case d.Asks != nil || d.Bids != nil:
		asksWire, bidsWire = d.Asks, d.Bids
		snapshot = true
		ts = d.Timestamp
	default:
		return nil, parser.Malformedf("no book levels in subject %q", msg.Subject)
	}
	if ts == 0 {
		ts = timeNow().UnixMilli()
	}

	symbol := d.Symbol
	if symbol == "" {
		if i := strings.LastIndexByte(msg.Topic, ':'); i >= 0 {
			symbol = msg.Topic[i+1:]
		}
	}
	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	asks, err := parser.Levels(asksWire, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	bids, err := parser.Levels(bidsWire, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	if snapshot {
		parser.SortAsks(asks)
	}
	return []*models.OrderBookMsg{{
		Exchange:   Name,
		MarketType: market,
		Symbol:     symbol,
		Pair:       pair,
		MsgType:    models.L2Event,
		Timestamp:  ts,
		Asks:       asks,
		Bids:       bids,
		Snapshot:   snapshot,
		Raw:        parser.RawString(raw),
	}}, nil
}
