package contractvalue

import (
	"context"
	"fmt"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"

	"cryptonorm/internal/symbols"
	"cryptonorm/models"
)

const kucoinFuturesEndpoint = "https://api-futures.kucoin.com"

type kucoinSymbolLister interface {
	GetAllSymbols(ctx context.Context) (*futuresmarket.GetAllSymbolsResp, error)
}

// KucoinFetcher reads the multiplier of every non-inverse futures contract
// through the KuCoin SDK market API.
type KucoinFetcher struct {
	market kucoinSymbolLister
	pairs  *symbols.Normalizer
}

// NewKucoinFetcher builds a public (unauthenticated) SDK client against endpoint.
func NewKucoinFetcher(endpoint string, pairs *symbols.Normalizer) *KucoinFetcher {
	if endpoint == "" {
		endpoint = kucoinFuturesEndpoint
	}
	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(endpoint).
		WithTransportOption(sdktype.NewTransportOptionBuilder().Build()).
		Build()
	client := sdkapi.NewClient(option)
	return &KucoinFetcher{
		market: client.RestService().GetFuturesService().GetMarketAPI(),
		pairs:  pairs,
	}
}

func (f *KucoinFetcher) Exchange() string          { return "kucoin" }
func (f *KucoinFetcher) Market() models.MarketType { return models.LinearSwap }

func (f *KucoinFetcher) Fetch(ctx context.Context) (map[string]float64, error) {
	resp, err := f.market.GetAllSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("kucoin contracts: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("kucoin contracts: empty response")
	}
	out := make(map[string]float64, len(resp.Data))
	for _, c := range resp.Data {
		if c.IsInverse || c.Multiplier <= 0 {
			continue
		}
		pair, err := f.pairs.Normalize(c.Symbol, "kucoin")
		if err != nil {
			continue
		}
		out[pair] = c.Multiplier
	}
	return out, nil
}
