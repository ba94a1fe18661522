package models

import (
	"encoding/json"
	"time"
)

// RawFrame is one text frame as delivered by a source, tagged with its route.
type RawFrame struct {
	Exchange   string
	MarketType MarketType
	MsgType    MessageType
	Payload    string
	ReceivedAt time.Time
}

func (f RawFrame) Route() Route {
	return Route{Exchange: f.Exchange, MarketType: f.MarketType, MsgType: f.MsgType}
}

// Order is one price level. QuantityBase of zero removes the level in a delta.
type Order struct {
	Price            float64  `json:"price"`
	QuantityBase     float64  `json:"quantity_base"`
	QuantityQuote    float64  `json:"quantity_quote"`
	QuantityContract *float64 `json:"quantity_contract,omitempty"`
}

// OrderBookMsg is a full book (Snapshot) or a set of level upserts.
//
// Asks are ascending by price when Snapshot is true. Bids keep the order the
// exchange sent them in. Timestamp is the exchange event time except for feeds
// that carry none, where it is the local receipt time and therefore only an
// approximation of event order.
type OrderBookMsg struct {
	Exchange   string          `json:"exchange"`
	MarketType MarketType      `json:"market_type"`
	Symbol     string          `json:"symbol"`
	Pair       string          `json:"pair"`
	MsgType    MessageType     `json:"msg_type"`
	Timestamp  int64           `json:"timestamp"`
	Asks       []Order         `json:"asks"`
	Bids       []Order         `json:"bids"`
	Snapshot   bool            `json:"snapshot"`
	Raw        json.RawMessage `json:"raw"`
}

func (m *OrderBookMsg) Route() Route {
	return Route{Exchange: m.Exchange, MarketType: m.MarketType, MsgType: m.MsgType}
}

func (m *OrderBookMsg) Key() string { return m.Symbol }

func (m *OrderBookMsg) EventTime() int64 { return m.Timestamp }
