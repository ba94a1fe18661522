// Package bitget parses Bitget swap pushes from the capi websocket
// (instrument ids like cmt_btcusdt and btcusd).
package bitget

import (
	"strings"
	"time"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "bitget"

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
			models.LinearSwap:  {models.Trade, models.FundingRate},
			models.InverseSwap: {models.Trade, models.FundingRate},
		},
		deps: deps,
	}
}

type push[T any] struct {
	Table string `json:"table"`
	Data  []T    `json:"data"`
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	var msg push[struct {
		InstrumentID string        `json:"instrument_id"`
		Price        parser.Number `json:"price"`
		Side         string        `json:"side"`
		Size         parser.Number `json:"size"`
		Timestamp    parser.Number `json:"timestamp"`
		TradeID      string        `json:"trade_id"`
	}]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Table != "swap/trade" {
		return nil, parser.Malformedf("unexpected table %q", msg.Table)
	}
	trades := make([]*models.TradeMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.Price, d.Size, d.Timestamp); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.InstrumentID, Name)
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
			Symbol:           d.InstrumentID,
			Pair:             pair,
			MsgType:          models.Trade,
			Timestamp:        d.Timestamp.Int64(),
			Price:            d.Price.Float64(),
			QuantityBase:     base,
			QuantityQuote:    quote,
			QuantityContract: contracts,
			Side:             sides.Side(strings.TrimSpace(d.Side)),
			TradeID:          d.TradeID,
			Raw:              parser.RawString(raw),
		})
	}
	return trades, nil
}

// ParseFundingRate stamps records with the receipt time: swap/funding_rate
// pushes only carry the settlement time.
func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	var msg push[struct {
		InstrumentID string        `json:"instrument_id"`
		FundingRate  parser.Number `json:"funding_rate"`
		FundingTime  parser.Number `json:"funding_time"`
	}]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Table != "swap/funding_rate" {
		return nil, parser.Malformedf("unexpected table %q", msg.Table)
	}
	now := timeNow().UnixMilli()
	rates := make([]*models.FundingRateMsg, 0, len(msg.Data))
	for _, d := range msg.Data {
		if err := parser.Require(d.FundingRate, d.FundingTime); err != nil {
			return nil, err
		}
		pair, err := p.deps.Pair(d.InstrumentID, Name)
		if err != nil {
			return nil, err
		}
		rates = append(rates, &models.FundingRateMsg{
			Exchange:    Name,
			MarketType:  market,
			Symbol:      d.InstrumentID,
			Pair:        pair,
			MsgType:     models.FundingRate,
			Timestamp:   now,
			FundingRate: d.FundingRate.Float64(),
			FundingTime: d.FundingTime.Int64(),
			Raw:         parser.RawString(raw),
		})
	}
	return rates, nil
}
