// Package bitmex parses BitMEX realtime table pushes.
package bitmex

import (
	"time"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "bitmex"

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
			models.InverseSwap: {models.Trade, models.FundingRate},
		},
		deps: deps,
	}
}

type table[T any] struct {
	Table  string `json:"table"`
	Action string `json:"action"`
	Data   []T    `json:"data"`
}

func millis(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, parser.Malformedf("bad timestamp %q", s)
	}
	return t.UnixMilli(), nil
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	var msg table[struct {
		Timestamp  string        `json:"timestamp"`
		Symbol     string        `json:"symbol"`
		Side       string        `json:"side"`
		Size       parser.Number `json:"size"`
		Price      parser.Number `json:"price"`
		TrdMatchID string        `json:"trdMatchID"`
	}]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Table != "trade" {
		return nil, parser.Malformedf("unexpected table %q", msg.Table)
	}
	trades := make([]*models.TradeMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Price, d.Size); err != nil {
			return nil, err
		}
		ts, err := millis(d.Timestamp)
		if err != nil {
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
			Timestamp:        ts,
			Price:            d.Price.Float64(),
			QuantityBase:     base,
			QuantityQuote:    quote,
			QuantityContract: contracts,
			Side:             sides.Side(d.Side),
			TradeID:          d.TrdMatchID,
			Raw:              parser.RawString(raw),
		})
	}
	return trades, nil
}

func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	var msg table[struct {
		Timestamp   string        `json:"timestamp"`
		Symbol      string        `json:"symbol"`
		FundingRate parser.Number `json:"fundingRate"`
	}]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Table != "funding" {
		return nil, parser.Malformedf("unexpected table %q", msg.Table)
	}
	rates := make([]*models.FundingRateMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.FundingRate); err != nil {
			return nil, err
		}
		ts, err := millis(d.Timestamp)
		if err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.Symbol, Name)
		if err != nil {
			return nil, err
		}
		rates = append(rates, &models.FundingRateMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      d.Symbol,
			Pair:        pair,
			MsgType:     models.FundingRate,
			Timestamp:   ts,
			FundingRate: d.FundingRate.Float64(),
			// a funding row is published when the rate is applied
			FundingTime: ts,
			Raw:         parser.RawString(raw),
		})
	}
	return rates, nil
}
