package symbols

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognizedSymbol is returned when a wire symbol cannot be mapped to a pair.
var ErrUnrecognizedSymbol = errors.New("unrecognized symbol")

// Normalizer maps exchange-native symbols to canonical BASE/QUOTE pairs.
// It is built once and only read afterwards, so it is safe for concurrent use.
type Normalizer struct {
	tables map[string]map[string]string
}

// NewNormalizer copies the given per-exchange lookup tables. Table entries win
// over the grammar rules, which lets metadata loaded at startup settle
// symbols the grammar would split ambiguously.
func NewNormalizer(tables map[string]map[string]string) *Normalizer {
	n := &Normalizer{tables: make(map[string]map[string]string, len(tables))}
	for exchange, table := range tables {
		cp := make(map[string]string, len(table))
		for sym, pair := range table {
			cp[sym] = pair
		}
		n.tables[strings.ToLower(exchange)] = cp
	}
	return n
}

// Normalize returns the canonical pair for symbol on exchange.
func (n *Normalizer) Normalize(symbol, exchange string) (string, error) {
	exchange = strings.ToLower(exchange)
	if symbol == "" {
		return "", fmt.Errorf("%w: empty symbol on %s", ErrUnrecognizedSymbol, exchange)
	}
	if n != nil {
		if pair, ok := n.tables[exchange][symbol]; ok {
			return pair, nil
		}
	}

	rule, ok := rules[exchange]
	if !ok {
		return "", fmt.Errorf("%w: no symbol grammar for exchange %s", ErrUnrecognizedSymbol, exchange)
	}
	base, quote, ok := rule(symbol)
	if !ok || base == "" || quote == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrUnrecognizedSymbol, symbol, exchange)
	}
	return Pair(base, quote), nil
}

// Pair formats base and quote as BASE/QUOTE, applying currency aliases.
func Pair(base, quote string) string {
	return currency(base) + "/" + currency(quote)
}

func currency(c string) string {
	c = strings.ToUpper(c)
	if alias, ok := aliases[c]; ok {
		return alias
	}
	return c
}

var aliases = map[string]string{
	"XBT": "BTC",
}
