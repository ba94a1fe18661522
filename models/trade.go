package models

import "encoding/json"

// Message is implemented by every normalized record.
type Message interface {
	Route() Route
	Key() string
	EventTime() int64
}

// TradeMsg is one executed trade.
//
// QuantityQuote equals Price*QuantityBase for spot and linear markets. When
// QuantityContract is set, QuantityBase was derived from it through the
// contract value.
type TradeMsg struct {
	Exchange         string          `json:"exchange"`
	MarketType       MarketType      `json:"market_type"`
	Symbol           string          `json:"symbol"`
	Pair             string          `json:"pair"`
	MsgType          MessageType     `json:"msg_type"`
	Timestamp        int64           `json:"timestamp"`
	Price            float64         `json:"price"`
	QuantityBase     float64         `json:"quantity_base"`
	QuantityQuote    float64         `json:"quantity_quote"`
	QuantityContract *float64        `json:"quantity_contract,omitempty"`
	Side             TradeSide       `json:"side"`
	TradeID          string          `json:"trade_id"`
	Raw              json.RawMessage `json:"raw"`
}

func (m *TradeMsg) Route() Route {
	return Route{Exchange: m.Exchange, MarketType: m.MarketType, MsgType: m.MsgType}
}

func (m *TradeMsg) Key() string { return m.Symbol }

func (m *TradeMsg) EventTime() int64 { return m.Timestamp }

// FundingRateMsg is a perpetual swap funding rate update.
type FundingRateMsg struct {
	Exchange      string          `json:"exchange"`
	MarketType    MarketType      `json:"market_type"`
	Symbol        string          `json:"symbol"`
	Pair          string          `json:"pair"`
	MsgType       MessageType     `json:"msg_type"`
	Timestamp     int64           `json:"timestamp"`
	FundingRate   float64         `json:"funding_rate"`
	FundingTime   int64           `json:"funding_time"`
	EstimatedRate *float64        `json:"estimated_rate,omitempty"`
	Raw           json.RawMessage `json:"raw"`
}

func (m *FundingRateMsg) Route() Route {
	return Route{Exchange: m.Exchange, MarketType: m.MarketType, MsgType: m.MsgType}
}

func (m *FundingRateMsg) Key() string { return m.Symbol }

func (m *FundingRateMsg) EventTime() int64 { return m.Timestamp }

// TickerMsg is a rolling 24h summary.
type TickerMsg struct {
	Exchange    string          `json:"exchange"`
	MarketType  MarketType      `json:"market_type"`
	Symbol      string          `json:"symbol"`
	Pair        string          `json:"pair"`
	MsgType     MessageType     `json:"msg_type"`
	Timestamp   int64           `json:"timestamp"`
	Open        float64         `json:"open"`
	High        float64         `json:"high"`
	Low         float64         `json:"low"`
	Close       float64         `json:"close"`
	Volume      float64         `json:"volume"`
	QuoteVolume float64         `json:"quote_volume"`
	BestBid     *Order          `json:"best_bid,omitempty"`
	BestAsk     *Order          `json:"best_ask,omitempty"`
	Raw         json.RawMessage `json:"raw"`
}

func (m *TickerMsg) Route() Route {
	return Route{Exchange: m.Exchange, MarketType: m.MarketType, MsgType: m.MsgType}
}

func (m *TickerMsg) Key() string { return m.Symbol }

func (m *TickerMsg) EventTime() int64 { return m.Timestamp }
