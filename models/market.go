package models

import (
	"fmt"
	"strings"
)

// MarketType classifies an instrument by product and settlement mode.
type MarketType string

const (
	Spot           MarketType = "spot"
	InverseFuture  MarketType = "inverse_future"
	LinearFuture   MarketType = "linear_future"
	InverseSwap    MarketType = "inverse_swap"
	LinearSwap     MarketType = "linear_swap"
	QuantoFuture   MarketType = "quanto_future"
	QuantoSwap     MarketType = "quanto_swap"
	EuropeanOption MarketType = "european_option"
)

var marketTypes = []MarketType{
	Spot, InverseFuture, LinearFuture, InverseSwap, LinearSwap, QuantoFuture, QuantoSwap, EuropeanOption,
}

// ParseMarketType accepts the snake_case wire form, case-insensitively.
func ParseMarketType(s string) (MarketType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range marketTypes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown market type %q", s)
}

func (m MarketType) String() string { return string(m) }

// IsDerivative reports whether quantities on this market may be quoted in contracts.
func (m MarketType) IsDerivative() bool { return m != Spot && m != "" }

func (m MarketType) IsInverse() bool { return m == InverseFuture || m == InverseSwap }

func (m MarketType) IsLinear() bool { return m == LinearFuture || m == LinearSwap }

// MessageType names the kind of feed a frame belongs to.
type MessageType string

const (
	Trade       MessageType = "trade"
	L2Event     MessageType = "l2_event"
	L3Event     MessageType = "l3_event"
	L2Snapshot  MessageType = "l2_snapshot"
	L3Snapshot  MessageType = "l3_snapshot"
	Ticker      MessageType = "ticker"
	FundingRate MessageType = "funding_rate"
)

var messageTypes = []MessageType{Trade, L2Event, L3Event, L2Snapshot, L3Snapshot, Ticker, FundingRate}

func ParseMessageType(s string) (MessageType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range messageTypes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

func (m MessageType) String() string { return string(m) }

// Ordered reports whether frames of this type must reach sinks in arrival order.
func (m MessageType) Ordered() bool { return m == L2Event || m == L3Event }

// TradeSide is the taker side of a trade.
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// Route identifies one parser pipeline.
type Route struct {
	Exchange   string      `json:"exchange" yaml:"exchange"`
	MarketType MarketType  `json:"market_type" yaml:"market_type"`
	MsgType    MessageType `json:"msg_type" yaml:"msg_type"`
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Exchange, r.MarketType, r.MsgType)
}

// ParseRoute builds a Route from the three CLI words.
func ParseRoute(exchange, marketType, msgType string) (Route, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	if exchange == "" {
		return Route{}, fmt.Errorf("exchange is required")
	}
	mt, err := ParseMarketType(marketType)
	if err != nil {
		return Route{}, err
	}
	msg, err := ParseMessageType(msgType)
	if err != nil {
		return Route{}, err
	}
	return Route{Exchange: exchange, MarketType: mt, MsgType: msg}, nil
}
