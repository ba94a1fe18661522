package symbols

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"

	"cryptonorm/models"
)

// LoadBinanceTable fetches exchangeInfo for the given market and returns a
// symbol -> pair table suitable for NewNormalizer. Only spot and linear swap
// listings are served by these endpoints.
func LoadBinanceTable(ctx context.Context, market models.MarketType) (map[string]string, error) {
	table := make(map[string]string)
	switch market {
	case models.Spot:
		info, err := binance.NewClient("", "").NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance spot exchange info: %w", err)
		}
		for _, s := range info.Symbols {
			table[s.Symbol] = Pair(s.BaseAsset, s.QuoteAsset)
		}
	case models.LinearSwap, models.LinearFuture:
		info, err := futures.NewClient("", "").NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance futures exchange info: %w", err)
		}
		for _, s := range info.Symbols {
			table[s.Symbol] = Pair(s.BaseAsset, s.QuoteAsset)
		}
	default:
		return nil, fmt.Errorf("binance exchange info not available for %s", market)
	}
	return table, nil
}
