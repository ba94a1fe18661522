// Package binance parses Binance spot, USDⓈ-M and COIN-M stream events, raw or
// wrapped in the combined-stream envelope {"stream": ..., "data": ...}.
package binance

import (
	"bytes"
	"encoding/json"
	"strings"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "binance"

// "m" is true when the buyer was the maker, i.e. the taker sold.
var sides = parser.SideVocabulary{Exchange: Name, Sell: []string{"true"}, Buy: []string{"false"}}

type Parser struct {
	parser.Unsupported
	parser.Capabilities
	deps parser.Deps
}

func New(deps parser.Deps) *Parser {
	return &Parser{
		Unsupported: parser.Unsupported{Name: Name},
		Capabilities: parser.Capabilities{
			models.Spot:        {models.Trade, models.L2Event, models.Ticker},
			models.LinearSwap:  {models.Trade, models.L2Event, models.FundingRate},
			models.InverseSwap: {models.Trade, models.L2Event, models.FundingRate},
		},
		deps: deps,
	}
}

type combined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// unwrap returns the event payload and the stream name, if any.
func unwrap(raw string) (json.RawMessage, string, error) {
	var c combined
	if err := parser.Decode(raw, &c); err != nil {
		// arrays (e.g. !markPrice@arr) are not envelopes
		if strings.HasPrefix(strings.TrimSpace(raw), "[") {
			return json.RawMessage(raw), "", nil
		}
		return nil, "", err
	}
	if c.Stream != "" && len(c.Data) > 0 {
		return c.Data, c.Stream, nil
	}
	return json.RawMessage(raw), "", nil
}

type tradeEvent struct {
	Event        string        `json:"e"`
	EventTime    int64         `json:"E"`
	Symbol       string        `json:"s"`
	TradeID      parser.Number `json:"t"`
	AggID        parser.Number `json:"a"`
	Price        parser.Number `json:"p"`
	Quantity     parser.Number `json:"q"`
	TradeTime    int64         `json:"T"`
	IsBuyerMaker *bool         `json:"m"`
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	data, _, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var e tradeEvent
	if err := parser.DecodeBytes(data, &e); err != nil {
		return nil, err
	}
	if e.Event != "trade" && e.Event != "aggTrade" {
		return nil, parser.Malformedf("unexpected event %q", e.Event)
	}
	if err := parser.Require(e.Price, e.Quantity); err != nil {
		return nil, err
	}
	if e.IsBuyerMaker == nil {
		return nil, parser.Malformedf("trade without maker flag")
	}
	pair, err := p.deps.Pair(e.Symbol, Name)
	if err != nil {
		return nil, err
	}
	cv, err := p.deps.ContractValue(Name, market, pair)
	if err != nil {
		return nil, err
	}
	base, quote, contracts := parser.Quantities(market, e.Price, e.Quantity, cv)

	id := e.TradeID
	if e.Event == "aggTrade" {
		id = e.AggID
	}
	side := "false"
	if *e.IsBuyerMaker {
		side = "true"
	}
	return []*models.TradeMsg{{
		Exchange:         Name,
		MarketType:       market,
		Symbol:           e.Symbol,
		Pair:             pair,
		MsgType:          models.Trade,
		Timestamp:        e.TradeTime,
		Price:            e.Price.Float64(),
		QuantityBase:     base,
		QuantityQuote:    quote,
		QuantityContract: contracts,
		Side:             sides.Side(side),
		TradeID:          id.String(),
		Raw:              parser.RawString(raw),
	}}, nil
}

type depthEvent struct {
	Event        string         `json:"e"`
	EventTime    int64          `json:"E"`
	Symbol       string         `json:"s"`
	Bids         []parser.Level `json:"b"`
	Asks         []parser.Level `json:"a"`
	LastUpdateID *int64         `json:"lastUpdateId"`
	// partial depth streams
	SnapshotBids []parser.Level `json:"bids"`
	SnapshotAsks []parser.Level `json:"asks"`
}

// ParseL2 accepts depthUpdate events as deltas and spot partial depth payloads
// ({"lastUpdateId", "bids", "asks"}) as snapshots. Partial depth payloads do
// not name their symbol, so they must come through the combined stream.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	data, stream, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var e depthEvent
	if err := parser.DecodeBytes(data, &e); err != nil {
		return nil, err
	}

	var (
		symbol             = e.Symbol
		asksWire, bidsWire = e.Asks, e.Bids
		snapshot           bool
		ts                 = e.EventTime
	)
	switch {
	case e.Event == "depthUpdate":
	case e.Event == "" && e.LastUpdateID != nil:
		snapshot = true
		asksWire, bidsWire = e.SnapshotAsks, e.SnapshotBids
		if i := strings.IndexByte(stream, '@'); i > 0 {
			symbol = strings.ToUpper(stream[:i])
		}
		if symbol == "" {
			return nil, parser.Malformedf("partial depth without stream name")
		}
	default:
		return nil, parser.Malformedf("unexpected event %q", e.Event)
	}

	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	cv, err := p.deps.ContractValue(Name, market, pair)
	if err != nil {
		return nil, err
	}
	build := func(price, size parser.Number) models.Order {
		return parser.DerivativeOrder(market, price, size, cv)
	}
	asks, err := parser.Levels(asksWire, build)
	if err != nil {
		return nil, err
	}
	bids, err := parser.Levels(bidsWire, build)
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

type markPriceEvent struct {
	Event           string        `json:"e"`
	EventTime       int64         `json:"E"`
	Symbol          string        `json:"s"`
	FundingRate     parser.Number `json:"r"`
	NextFundingTime int64         `json:"T"`
}

// ParseFundingRate reads markPriceUpdate events, single or as the
// !markPrice@arr array.
func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	data, _, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var events []markPriceEvent
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		err = parser.DecodeBytes(data, &events)
	} else {
		var e markPriceEvent
		err = parser.DecodeBytes(data, &e)
		events = []markPriceEvent{e}
	}
	if err != nil {
		return nil, err
	}

	rates := make([]*models.FundingRateMsg, 0, len(events))
	for _, e := range events {
		if e.Event != "markPriceUpdate" {
			return nil, parser.Malformedf("unexpected event %q", e.Event)
		}
		if err := parser.Require(e.FundingRate); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(e.Symbol, Name)
		if err != nil {
			return nil, err
		}
		rates = append(rates, &models.FundingRateMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      e.Symbol,
			Pair:        pair,
			MsgType:     models.FundingRate,
			Timestamp:   e.EventTime,
			FundingRate: e.FundingRate.Float64(),
			FundingTime: e.NextFundingTime,
			Raw:         parser.RawString(raw),
		})
	}
	return rates, nil
}

type tickerEvent struct {
	Event       string        `json:"e"`
	EventTime   int64         `json:"E"`
	Symbol      string        `json:"s"`
	Open        parser.Number `json:"o"`
	High        parser.Number `json:"h"`
	Low         parser.Number `json:"l"`
	Close       parser.Number `json:"c"`
	Volume      parser.Number `json:"v"`
	QuoteVolume parser.Number `json:"q"`
	BidPrice    parser.Number `json:"b"`
	BidQty      parser.Number `json:"B"`
	AskPrice    parser.Number `json:"a"`
	AskQty      parser.Number `json:"A"`
}

func (p *Parser) ParseTicker(market models.MarketType, raw string) ([]*models.TickerMsg, error) {
	if err := parser.Check(p, market, models.Ticker); err != nil {
		return nil, err
	}
	data, _, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	var e tickerEvent
	if err := parser.DecodeBytes(data, &e); err != nil {
		return nil, err
	}
	if e.Event != "24hrTicker" {
		return nil, parser.Malformedf("unexpected event %q", e.Event)
	}
	if err := parser.Require(e.Open, e.High, e.Low, e.Close, e.Volume, e.QuoteVolume); err != nil {
		return nil, err
	}
	pair, err := p.deps.Pair(e.Symbol, Name)
	if err != nil {
		return nil, err
	}
	t := &models.TickerMsg{
		Exchange:    Name,
		MarketType:  market,
		Symbol:      e.Symbol,
		Pair:        pair,
		MsgType:     models.Ticker,
		Timestamp:   e.EventTime,
		Open:        e.Open.Float64(),
		High:        e.High.Float64(),
		Low:         e.Low.Float64(),
		Close:       e.Close.Float64(),
		Volume:      e.Volume.Float64(),
		QuoteVolume: e.QuoteVolume.Float64(),
		Raw:         parser.RawString(raw),
	}
	if e.BidPrice.IsSet() && e.BidQty.IsSet() {
		o := parser.SpotOrder(e.BidPrice, e.BidQty)
		t.BestBid = &o
	}
	if e.AskPrice.IsSet() && e.AskQty.IsSet() {
		o := parser.SpotOrder(e.AskPrice, e.AskQty)
		t.BestAsk = &o
	}
	return []*models.TickerMsg{t}, nil
}
