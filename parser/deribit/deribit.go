// Package deribit parses Deribit JSON-RPC subscription notifications.
//
// Deribit sizes futures and perpetuals in USD rather than in contracts, so
// amounts are converted to contracts through the contract value before the
// usual inverse quantity rule applies.
package deribit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "deribit"

// funding accrues continuously and settles every 8 hours
const fundingPeriod = 8 * time.Hour

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
			models.InverseFuture: {models.Trade, models.L2Event, models.Ticker},
			models.InverseSwap:   {models.Trade, models.L2Event, models.Ticker, models.FundingRate},
		},
		deps: deps,
	}
}

type notification[T any] struct {
	Method string `json:"method"`
	Params struct {
		Channel string `json:"channel"`
		Data    T      `json:"data"`
	} `json:"params"`
}

func decode[T any](raw, prefix string) (*notification[T], error) {
	var msg notification[T]
	if err := parser.Decode(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Method != "subscription" || !strings.HasPrefix(msg.Params.Channel, prefix) {
		return nil, parser.Malformedf("unexpected channel %q", msg.Params.Channel)
	}
	return &msg, nil
}

// bookLevel is ["new"|"change"|"delete", price, amount].
type bookLevel struct {
	Action string
	Price  parser.Number
	Amount parser.Number
}

func (l *bookLevel) UnmarshalJSON(b []byte) error {
	var fields []json.RawMessage
	if err := parser.DecodeBytes(b, &fields); err != nil {
		return err
	}
	if len(fields) != 3 {
		return parser.Malformedf("book level has %d fields", len(fields))
	}
	if err := parser.DecodeBytes(fields[0], &l.Action); err != nil {
		return err
	}
	if err := l.Price.UnmarshalJSON(fields[1]); err != nil {
		return err
	}
	return l.Amount.UnmarshalJSON(fields[2])
}

func (p *Parser) lookup(market models.MarketType, instrument string) (string, float64, error) {
	pair, err := p.deps.Pair(instrument, Name)
	if err != nil {
		return "", 0, err
	}
	cv, err := p.deps.ContractValue(Name, market, pair)
	if err != nil {
		return "", 0, err
	}
	if cv == nil {
		return "", 0, parser.Unrecognizedf("no contract value for %s", instrument)
	}
	return pair, *cv, nil
}

// usdQuantities converts a USD amount into base, quote and contract counts.
func usdQuantities(price, amount parser.Number, cv float64) (base, quote float64, contracts *float64) {
	q := amount.Decimal()
	c := q.Div(decimal.NewFromFloat(cv)).InexactFloat64()
	if price.Decimal().IsZero() {
		return 0, q.InexactFloat64(), &c
	}
	return q.Div(price.Decimal()).InexactFloat64(), q.InexactFloat64(), &c
}

func usdOrder(price, amount parser.Number, cv float64) models.Order {
	base, quote, contracts := usdQuantities(price, amount, cv)
	return models.Order{
		Price:            price.Float64(),
		QuantityBase:     base,
		QuantityQuote:    quote,
		QuantityContract: contracts,
	}
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	msg, err := decode[[]struct {
		TradeID    string        `json:"trade_id"`
		Timestamp  int64         `json:"timestamp"`
		Price      parser.Number `json:"price"`
		Amount     parser.Number `json:"amount"`
		Direction  string        `json:"direction"`
		Instrument string        `json:"instrument_name"`
	}](raw, "trades.")
	if err != nil {
		return nil, err
	}

	trades := make([]*models.TradeMsg, 0, len(msg.Params.Data))
	for _, d := range msg.Params.Data {
		if err := parser.Require(d.Price, d.Amount); err != nil {
			return nil, err
		}
		pair, cv, err := p.lookup(market, d.Instrument)
		if err != nil {
			return nil, err
		}
		base, quote, contracts := usdQuantities(d.Price, d.Amount, cv)
		trades = append(trades, &models.TradeMsg{
			Exchange:         Name,
			MarketType:       market,
			Symbol:           d.Instrument,
			Pair:             pair,
			MsgType:          models.Trade,
			Timestamp:        d.Timestamp,
			Price:            d.Price.Float64(),
			QuantityBase:     base,
			QuantityQuote:    quote,
			QuantityContract: contracts,
			Side:             sides.Side(d.Direction),
			TradeID:          d.TradeID,
			Raw:              parser.RawString(raw),
		})
	}
	return trades, nil
}

// ParseL2 handles book.$instrument.100ms; "type" tells a snapshot from a
// change set. Deleted levels carry amount 0.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	msg, err := decode[struct {
		Type       string      `json:"type"`
		Timestamp  int64       `json:"timestamp"`
		Instrument string      `json:"instrument_name"`
		Asks       []bookLevel `json:"asks"`
		Bids       []bookLevel `json:"bids"`
	}](raw, "book.")
	if err != nil {
		return nil, err
	}
	d := msg.Params.Data
	var snapshot bool
	switch d.Type {
	case "snapshot":
		snapshot = true
	case "change":
	default:
		return nil, parser.Malformedf("unknown book type %q", d.Type)
	}
	pair, cv, err := p.lookup(market, d.Instrument)
	if err != nil {
		return nil, err
	}

	orders := func(levels []bookLevel) []models.Order {
		out := make([]models.Order, 0, len(levels))
		for _, l := range levels {
			out = append(out, usdOrder(l.Price, l.Amount, cv))
		}
		return out
	}
	book := &models.OrderBookMsg{
		Exchange:   Name,
		MarketType: market,
		Symbol:     d.Instrument,
		Pair:       pair,
		MsgType:    models.L2Event,
		Timestamp:  d.Timestamp,
		Asks:       orders(d.Asks),
		Bids:       orders(d.Bids),
		Snapshot:   snapshot,
		Raw:        parser.RawString(raw),
	}
	if snapshot {
		parser.SortAsks(book.Asks)
	}
	return []*models.OrderBookMsg{book}, nil
}

type tickerData struct {
	Timestamp      int64          `json:"timestamp"`
	Instrument     string         `json:"instrument_name"`
	LastPrice      parser.Number  `json:"last_price"`
	BestBidPrice   *parser.Number `json:"best_bid_price"`
	BestBidAmount  *parser.Number `json:"best_bid_amount"`
	BestAskPrice   *parser.Number `json:"best_ask_price"`
	BestAskAmount  *parser.Number `json:"best_ask_amount"`
	Funding8h      *parser.Number `json:"funding_8h"`
	CurrentFunding *parser.Number `json:"current_funding"`
	Stats          struct {
		High        *parser.Number `json:"high"`
		Low         *parser.Number `json:"low"`
		Volume      *parser.Number `json:"volume"`
		VolumeUSD   *parser.Number `json:"volume_usd"`
		PriceChange *parser.Number `json:"price_change"`
	} `json:"stats"`
}

func value(n *parser.Number) float64 {
	if n == nil {
		return 0
	}
	return n.Float64()
}

func (p *Parser) ParseTicker(market models.MarketType, raw string) ([]*models.TickerMsg, error) {
	if err := parser.Check(p, market, models.Ticker); err != nil {
		return nil, err
	}
	msg, err := decode[tickerData](raw, "ticker.")
	if err != nil {
		return nil, err
	}
	d := msg.Params.Data
	if err := parser.Require(d.LastPrice); err != nil {
		return nil, err
	}
	pair, cv, err := p.lookup(market, d.Instrument)
	if err != nil {
		return nil, err
	}

	ticker := &models.TickerMsg{
		Exchange:    Name,
		MarketType:  market,
		Symbol:      d.Instrument,
		Pair:        pair,
		MsgType:     models.Ticker,
		Timestamp:   d.Timestamp,
		High:        value(d.Stats.High),
		Low:         value(d.Stats.Low),
		Close:       d.LastPrice.Float64(),
		Volume:      value(d.Stats.Volume),
		QuoteVolume: value(d.Stats.VolumeUSD),
		Raw:         parser.RawString(raw),
	}
	// price_change is the 24h change in percent
	if pc := d.Stats.PriceChange; pc != nil {
		ratio := decimal.NewFromInt(1).Add(pc.Decimal().Div(decimal.NewFromInt(100)))
		if !ratio.IsZero() {
			ticker.Open = d.LastPrice.Decimal().Div(ratio).InexactFloat64()
		}
	}
	if d.BestBidPrice != nil && d.BestBidAmount != nil {
		o := usdOrder(*d.BestBidPrice, *d.BestBidAmount, cv)
		ticker.BestBid = &o
	}
	if d.BestAskPrice != nil && d.BestAskAmount != nil {
		o := usdOrder(*d.BestAskPrice, *d.BestAskAmount, cv)
		ticker.BestAsk = &o
	}
	return []*models.TickerMsg{ticker}, nil
}

// ParseFundingRate reads funding from the perpetual's ticker channel. The
// funding time is the next 8h settlement after the ticker timestamp.
func (p *Parser) ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error) {
	if err := parser.Check(p, market, models.FundingRate); err != nil {
		return nil, err
	}
	msg, err := decode[tickerData](raw, "ticker.")
	if err != nil {
		return nil, err
	}
	d := msg.Params.Data
	if d.Funding8h == nil {
		return nil, parser.Malformedf("ticker for %s carries no funding_8h", d.Instrument)
	}
	pair, err := p.deps.Pair(d.Instrument, Name)
	if err != nil {
		return nil, err
	}
	period := fundingPeriod.Milliseconds()
	rate := &models.FundingRateMsg{
		Exchange:    Name,
		MarketType:  market,
		Symbol:      d.Instrument,
		Pair:        pair,
		MsgType:     models.FundingRate,
		Timestamp:   d.Timestamp,
		FundingRate: d.Funding8h.Float64(),
		FundingTime: (d.Timestamp/period + 1) * period,
		Raw:         parser.RawString(raw),
	}
	if d.CurrentFunding != nil {
		v := d.CurrentFunding.Float64()
		rate.EstimatedRate = &v
	}
	return []*models.FundingRateMsg{rate}, nil
}
