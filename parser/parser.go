// Package parser holds what every exchange parser shares: the capability
// interface, the error taxonomy and the wire decoding helpers.
package parser

import (
	"errors"
	"fmt"

	"cryptonorm/internal/contractvalue"
	"cryptonorm/internal/symbols"
	"cryptonorm/models"
)

var (
	// ErrMalformedPayload marks a frame whose shape or values do not match its
	// declared message type.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsupportedMessageType marks a (market type, message type) an
	// exchange does not offer.
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	// ErrUnrecognizedSymbol is re-exported so callers need one import.
	ErrUnrecognizedSymbol = symbols.ErrUnrecognizedSymbol
)

// Parser converts raw frames of one exchange into normalized records.
// Implementations are stateless and safe for concurrent use.
type Parser interface {
	Exchange() string
	Supports(market models.MarketType, msg models.MessageType) bool
	ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error)
	ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error)
	ParseL3(market models.MarketType, raw string) ([]*models.OrderBookMsg, error)
	ParseTicker(market models.MarketType, raw string) ([]*models.TickerMsg, error)
	ParseFundingRate(market models.MarketType, raw string) ([]*models.FundingRateMsg, error)
}

// Deps are the read-only lookup tables injected into every parser.
type Deps struct {
	Pairs     *symbols.Normalizer
	Contracts *contractvalue.Table
}

// Pair normalizes symbol for exchange.
func (d Deps) Pair(symbol, exchange string) (string, error) {
	return d.Pairs.Normalize(symbol, exchange)
}

// Capabilities lists, per market type, the message types a parser offers.
type Capabilities map[models.MarketType][]models.MessageType

func (c Capabilities) Supports(market models.MarketType, msg models.MessageType) bool {
	for _, m := range c[market] {
		if m == msg {
			return true
		}
	}
	return false
}

// Check returns an ErrUnsupportedMessageType error unless p offers msg on market.
func Check(p Parser, market models.MarketType, msg models.MessageType) error {
	if p.Supports(market, msg) {
		return nil
	}
	return Unsupportedf(p.Exchange(), market, msg)
}

// Unsupported answers ErrUnsupportedMessageType for every method; exchange
// parsers embed it and override what they offer.
type Unsupported struct {
	Name string
}

func (u Unsupported) Exchange() string { return u.Name }

func (u Unsupported) unsupported(market models.MarketType, msg models.MessageType) error {
	return Unsupportedf(u.Name, market, msg)
}

func (u Unsupported) ParseTrade(market models.MarketType, _ string) ([]*models.TradeMsg, error) {
	return nil, u.unsupported(market, models.Trade)
}

func (u Unsupported) ParseL2(market models.MarketType, _ string) ([]*models.OrderBookMsg, error) {
	return nil, u.unsupported(market, models.L2Event)
}

func (u Unsupported) ParseL3(market models.MarketType, _ string) ([]*models.OrderBookMsg, error) {
	return nil, u.unsupported(market, models.L3Event)
}

func (u Unsupported) ParseTicker(market models.MarketType, _ string) ([]*models.TickerMsg, error) {
	return nil, u.unsupported(market, models.Ticker)
}

func (u Unsupported) ParseFundingRate(market models.MarketType, _ string) ([]*models.FundingRateMsg, error) {
	return nil, u.unsupported(market, models.FundingRate)
}

// Unsupportedf builds an ErrUnsupportedMessageType error for a route.
func Unsupportedf(exchange string, market models.MarketType, msg models.MessageType) error {
	return fmt.Errorf("%w: %s does not offer %s on %s", ErrUnsupportedMessageType, exchange, msg, market)
}

// Malformedf builds an ErrMalformedPayload error.
func Malformedf(format string, args ...interface{}) error {
	return wrap(ErrMalformedPayload, format, args...)
}

// Kind classifies a parse error for logging and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedMessageType):
		return "unsupported_message_type"
	case errors.Is(err, ErrUnrecognizedSymbol):
		return "unrecognized_symbol"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "unknown"
	}
}
