// Package huobi parses Huobi (HTX) market data frames.
package huobi

import (
	"strings"

	"cryptonorm/models"
	"cryptonorm/parser"
)

// Name is the exchange identifier used in routes and sinks.
const Name = "huobi"

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
			models.Spot:          {models.Trade, models.L2Event},
			models.InverseFuture: {models.Trade},
			models.InverseSwap:   {models.Trade, models.FundingRate},
			models.LinearSwap:    {models.FundingRate},
		},
		deps: deps,
	}
}

type tradeTick struct {
	ID   parser.Number `json:"id"`
	Ts   int64         `json:"ts"`
	Data []struct {
		Ts        int64         `json:"ts"`
		TradeID   parser.Number `json:"tradeId"`
		ID        parser.Number `json:"id"`
		Amount    parser.Number `json:"amount"`
		Price     parser.Number `json:"price"`
		Direction string        `json:"direction"`
	} `json:"data"`
}

type depthTick struct {
	Ts   int64          `json:"ts"`
	Asks []parser.Level `json:"asks"`
	Bids []parser.Level `json:"bids"`
}

// channel symbols: market.btcusdt.trade.detail, market.BTC-USD.trade.detail
func symbolOf(ch string) (string, error) {
	parts := strings.Split(ch, ".")
	if len(parts) < 3 || parts[0] != "market" || parts[1] == "" {
		return "", parser.Malformedf("unexpected channel %q", ch)
	}
	return parts[1], nil
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	var msg struct {
		Ch   string    `json:"ch"`
		Ts   int64     `json:"ts"`
		Tick tradeTick `json:"tick"`
	}
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(msg.Ch, ".trade.detail") {
		return nil, parser.Malformedf("not a trade channel: %q", msg.Ch)
	}
	symbol, err := symbolOf(msg.Ch)
	if err != nil {
		return nil, err
	}
	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	cv, err := p.deps.ContractValue(Name, market, pair)
	if err != nil {
		return nil, err
	}

	trades := make([]*models.TradeMsg, 0, len(msg.Tick.Data))
	for _, d := range msg.Tick.Data {
		if err := parser.Require(d.Price, d.Amount); err != nil {
			return nil, err
		}
		id := d.TradeID
		if !id.IsSet() {
			id = d.ID
		}
		base, quote, contracts := parser.Quantities(market, d.Price, d.Amount, cv)
		trades = append(trades, &models.TradeMsg{
			Exchange:         Name,
			MarketType:       market,
			Symbol:           symbol,
			Pair:             pair,
			MsgType:          models.Trade,
			Timestamp:        d.Ts,
			Price:            d.Price.Float64(),
			QuantityBase:     base,
			QuantityQuote:    quote,
			QuantityContract: contracts,
			Side:             sides.Side(d.Direction),
			TradeID:          id.String(),
			Raw:              parser.RawString(raw),
		})
	}
	return trades, nil
}

// ParseL2 handles both depth channels. market.$symbol.depth.stepN and
// market.$symbol.mbp.refresh.N push the whole visible book; market.$symbol.mbp.N
// pushes level changes.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	var msg struct {
		Ch   string    `json:"ch"`
		Ts   int64     `json:"ts"`
		Tick depthTick `json:"tick"`
	}
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	symbol, err := symbolOf(msg.Ch)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(msg.Ch, ".")
	if len(parts) < 3 || (parts[2] != "depth" && parts[2] != "mbp") {
		return nil, parser.Malformedf("not a depth channel: %q", msg.Ch)
	}
	snapshot := parts[2] == "depth" || (len(parts) > 3 && parts[3] == "refresh")

	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	asks, err := parser.Levels(msg.Tick.Asks, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	bids, err := parser.Levels(msg.Tick.Bids, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	if snapshot {
		parser.SortAsks(asks)
	}
	ts := msg.Ts
	if ts == 0 {
		ts = msg.Tick.Ts
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

// ParseFundingRate handles the swap notification topic public.$code.funding_rate.
func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	var msg struct {
		Op    string `json:"op"`
		Topic string `json:"topic"`
		Ts    int64  `json:"ts"`
		Data  []struct {
			ContractCode   string        `json:"contract_code"`
			FundingRate    parser.Number `json:"funding_rate"`
			EstimatedRate  parser.Number `json:"estimated_rate"`
			SettlementTime parser.Number `json:"settlement_time"`
			FundingTime    parser.Number `json:"funding_time"`
		} `json:"data"`
	}
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Op != "notify" || !strings.HasSuffix(msg.Topic, ".funding_rate") {
		return nil, parser.Malformedf("not a funding rate notification: %q", msg.Topic)
	}
	rates := make([]*models.FundingRateMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.FundingRate); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.ContractCode, Name)
		if err != nil {
			return nil, err
		}
		fundingTime := d.SettlementTime
		if !fundingTime.IsSet() {
			fundingTime = d.FundingTime
		}
		r := &models.FundingRateMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      d.ContractCode,
			Pair:        pair,
			MsgType:     models.FundingRate,
			Timestamp:   msg.Ts,
			FundingRate: d.FundingRate.Float64(),
			FundingTime: fundingTime.Int64(),
			Raw:         parser.RawString(raw),
		}
		if d.EstimatedRate.IsSet() {
			v := d.EstimatedRate.Float64()
			r.EstimatedRate = &v
		}
		rates = append(rates, r)
	}
	return rates, nil
}
