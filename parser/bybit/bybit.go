// Package bybit parses Bybit v5 public linear and inverse topics.
package bybit

import (
	"strings"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "bybit"

var sides = parser.SideVocabulary{Exchange: Name, Sell: []string{"Sell"}, Buy: []string{"Buy"}}

type Parser struct {
	parser.Unsupported
	parser.Capabilities
	deps parser.Deps
}

func New(deps parser.Deps) *Parser {
	return &Parser{
		Unsupported: parser.Unsupported{Name: Name},
		Capabilities: parser.Capabilities{
			models.LinearSwap:  {models.Trade, models.L2Event},
			models.InverseSwap: {models.Trade, models.L2Event},
		},
		deps: deps,
	}
}

type tradeData struct {
	Time    int64         `json:"T"`
	Symbol  string        `json:"s"`
	Side    string        `json:"S"`
	Size    parser.Number `json:"v"`
	Price   parser.Number `json:"p"`
	TradeID string        `json:"i"`
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	var msg struct {
		Topic string      `json:"topic"`
		Ts    int64       `json:"ts"`
		Data  []tradeData `json:"data"`
	}
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(msg.Topic, "publicTrade.") {
		return nil, parser.Malformedf("unexpected topic %q", msg.Topic)
	}
	trades := make([]*models.TradeMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Price, d.Size); err != nil {
			return nil, err
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
		trades = append(trades, &models.TradeMsg{
			Exchange:         Name,
			MarketType:       market,
			Symbol:           d.Symbol,
			Pair:             pair,
			MsgType:          models.Trade,
			Timestamp:        d.Time,
			Price:            d.Price.Float64(),
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

// ParseL2 reads orderbook.{depth}.{symbol}. The first push after subscribing
// has type "snapshot", later ones "delta".
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	var msg struct {
		Topic string `json:"topic"`
		Type  string `json:"type"`
		Ts    int64  `json:"ts"`
		Data  struct {
			Symbol string         `json:"s"`
			Bids   []parser.Level `json:"b"`
			Asks   []parser.Level `json:"a"`
		} `json:"data"`
	}
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(msg.Topic, "orderbook.") {
		return nil, parser.Malformedf("unexpected topic %q", msg.Topic)
	}
	var snapshot bool
	switch msg.Type {
	case "snapshot":
		snapshot = true
	case "delta":
	default:
		return nil, parser.Malformedf("unknown book type %q", msg.Type)
	}

	pair, err := p.deps.Pair(msg.Data.Symbol, Name)
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
	asks, err := parser.Levels(msg.Data.Asks, build)
	if err != nil {
		return nil, err
	}
	bids, err := parser.Levels(msg.Data.Bids, build)
	if err != nil {
		return nil, err
	}
	if snapshot {
		parser.SortAsks(asks)
	}
	return []*models.OrderBookMsg{{
		Exchange:   Name,
		MarketType: market,
		Symbol:     msg.Data.Symbol,
		Pair:       pair,
		MsgType:    models.L2Event,
		Timestamp:  msg.Ts,
		Asks:       asks,
		Bids:       bids,
		Snapshot:   snapshot,
		Raw:        parser.RawString(raw),
	}}, nil
}
