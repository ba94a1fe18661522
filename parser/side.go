package parser

import (
	"strings"

	"cryptonorm/internal/metrics"
	"cryptonorm/models"
)

// SideVocabulary is an exchange's pair of taker-side tokens, compared
// case-insensitively.
type SideVocabulary struct {
	Exchange string
	Sell     []string
	Buy      []string
}

// Side maps token to a TradeSide. Anything not recognized as a sell token is
// a buy. Tokens that are not in the buy list either are still returned as
// Buy, but counted so a protocol change on the exchange shows up in metrics.
func (v SideVocabulary) Side(token string) models.TradeSide {
	for _, s := range v.Sell {
		if strings.EqualFold(token, s) {
			return models.Sell
		}
	}
	for _, b := range v.Buy {
		if strings.EqualFold(token, b) {
			return models.Buy
		}
	}
	metrics.IncSideFallback(v.Exchange, token)
	return models.Buy
}
