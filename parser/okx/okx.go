// Package okx parses OKX v5 public channel pushes.
package okx

import (
	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "okx"

var sides = parser.SideVocabulary{Exchange: Name, Sell: []string{"sell"}, Buy: []string{"buy"}}

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

type push[T any] struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string `json:"action"`
	Data   []T    `json:"data"`
}

func decode[T any](raw string, channels ...string) (*push[T], error) {
	var msg push[T]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	for _, c := range channels {
		if msg.Arg.Channel == c {
			return &msg, nil
		}
	}
	return nil, parser.Malformedf("unexpected channel %q", msg.Arg.Channel)
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	msg, err := decode[struct {
		InstID  string        `json:"instId"`
		TradeID string        `json:"tradeId"`
		Px      parser.Number `json:"px"`
		Sz      parser.Number `json:"sz"`
		Side    string        `json:"side"`
		Ts      parser.Number `json:"ts"`
	}](raw, "trades", "trades-all")
	if err != nil {
		return nil, err
	}
	trades := make([]*models.TradeMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Px, d.Sz, d.Ts); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.InstID, Name)
		if err != nil {
			return nil, err
		}
		cv, err := p.deps.ContractValue(Name, market, pair)
		if err != nil {
			return nil, err
		}
		base, quote, contracts := parser.Quantities(market, d.Px, d.Sz, cv)
		trades = append(trades, &models.TradeMsg{
			Exchange:         Name,
			MarketType:       market,
			Symbol:           d.InstID,
			Pair:             pair,
			MsgType:          models.Trade,
			Timestamp:        d.Ts.Int64(),
			Price:            d.Px.Float64(),
			QuantityBase:     base,
			QuantityQuote:    quote,
			QuantityContract: contracts,
			Side:             sides.Side(d.Side),
			TradeID:          d.TradeID,
			Raw:              parser.RawString(raw),
		})
	}
	return trades, nil
}

// ParseL2 reads the books family. "books" and "books-l2-tbt" label each push
// with action snapshot or update; "books5" always carries the whole top of book.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	msg, err := decode[struct {
		Asks []parser.Level `json:"asks"`
		Bids []parser.Level `json:"bids"`
		Ts   parser.Number  `json:"ts"`
	}](raw, "books", "books5", "books-l2-tbt", "books50-l2-tbt")
	if err != nil {
		return nil, err
	}
	var snapshot bool
	switch {
	case msg.Arg.Channel == "books5":
		snapshot = true
	case msg.Action == "snapshot":
		snapshot = true
	case msg.Action == "update":
	default:
		return nil, parser.Malformedf("unknown book action %q", msg.Action)
	}

	pair, err := p.deps.Pair(msg.Arg.InstID, Name)
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

	books := make([]*models.OrderBookMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Ts); err != nil {
			return nil, err
		}
		asks, err := parser.Levels(d.Asks, build)
		if err != nil {
			return nil, err
		}
		bids, err := parser.Levels(d.Bids, build)
		if err != nil {
			return nil, err
		}
		if snapshot {
			parser.SortAsks(asks)
		}
		books = append(books, &models.OrderBookMsg{
			Exchange:   Name,
			MarketType: market,
			Symbol:     msg.Arg.InstID,
			Pair:       pair,
			MsgType:    models.L2Event,
			Timestamp:  d.Ts.Int64(),
			Asks:       asks,
			Bids:       bids,
			Snapshot:   snapshot,
			Raw:        parser.RawString(raw),
		})
	}
	return books, nil
}

func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	msg, err := decode[struct {
		InstID          string        `json:"instId"`
		FundingRate     parser.Number `json:"fundingRate"`
		FundingTime     parser.Number `json:"fundingTime"`
		NextFundingRate string        `json:"nextFundingRate"`
		Ts              parser.Number `json:"ts"`
	}](raw, "funding-rate")
	if err != nil {
		return nil, err
	}
	rates := make([]*models.FundingRateMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.FundingRate, d.FundingTime); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.InstID, Name)
		if err != nil {
			return nil, err
		}
		ts := d.Ts.Int64()
		if !d.Ts.IsSet() {
			ts = d.FundingTime.Int64()
		}
		r := &models.FundingRateMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      d.InstID,
			Pair:        pair,
			MsgType:     models.FundingRate,
			Timestamp:   ts,
			FundingRate: d.FundingRate.Float64(),
			FundingTime: d.FundingTime.Int64(),
			Raw:         parser.RawString(raw),
		}
		// nextFundingRate is "" outside the estimation window
		if d.NextFundingRate != "" {
			v, err := parser.ParseFloat(d.NextFundingRate)
			if err != nil {
				return nil, err
			}
			r.EstimatedRate = &v
		}
		rates = append(rates, r)
	}
	return rates, nil
}

func (p *Parser) ParseTicker(market models.MarketType, raw string) ([]*models.TickerMsg, error) {
	if err := parser.Check(p, market, models.Ticker); err != nil {
		return nil, err
	}
	msg, err := decode[struct {
		InstID    string        `json:"instId"`
		Last      parser.Number `json:"last"`
		AskPx     parser.Number `json:"askPx"`
		AskSz     parser.Number `json:"askSz"`
		BidPx     parser.Number `json:"bidPx"`
		BidSz     parser.Number `json:"bidSz"`
		Open24h   parser.Number `json:"open24h"`
		High24h   parser.Number `json:"high24h"`
		Low24h    parser.Number `json:"low24h"`
		Vol24h    parser.Number `json:"vol24h"`
		VolCcy24h parser.Number `json:"volCcy24h"`
		Ts        parser.Number `json:"ts"`
	}](raw, "tickers")
	if err != nil {
		return nil, err
	}
	tickers := make([]*models.TickerMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Last, d.Open24h, d.High24h, d.Low24h, d.Vol24h, d.VolCcy24h, d.Ts); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.InstID, Name)
		if err != nil {
			return nil, err
		}
		t := &models.TickerMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      d.InstID,
			Pair:        pair,
			MsgType:     models.Ticker,
			Timestamp:   d.Ts.Int64(),
			Open:        d.Open24h.Float64(),
			High:        d.High24h.Float64(),
			Low:         d.Low24h.Float64(),
			Close:       d.Last.Float64(),
			Volume:      d.Vol24h.Float64(),
			QuoteVolume: d.VolCcy24h.Float64(),
			Raw:         parser.RawString(raw),
		}
		if d.BidPx.IsSet() && d.BidSz.IsSet() {
			o := parser.SpotOrder(d.BidPx, d.BidSz)
			t.BestBid = &o
		}
		if d.AskPx.IsSet() && d.AskSz.IsSet() {
			o := parser.SpotOrder(d.AskPx, d.AskSz)
			t.BestAsk = &o
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}
