package contractvalue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"cryptonorm/internal/symbols"
	"cryptonorm/models"
)

const bitgetContractsURL = "https://capi.bitget.com/api/swap/v3/market/contracts"

// BitgetFetcher reads contract_val of forward (USDT margined) swaps.
type BitgetFetcher struct {
	URL    string
	Client *http.Client
	Pairs  *symbols.Normalizer
}

type bitgetContract struct {
	Symbol              string `json:"symbol"`
	ContractVal         string `json:"contract_val"`
	ForwardContractFlag bool   `json:"forwardContractFlag"`
}

func (f *BitgetFetcher) Exchange() string          { return "bitget" }
func (f *BitgetFetcher) Market() models.MarketType { return models.LinearSwap }

func (f *BitgetFetcher) Fetch(ctx context.Context) (map[string]float64, error) {
	url := f.URL
	if url == "" {
		url = bitgetContractsURL
	}
	var contracts []bitgetContract
	if err := getJSON(ctx, f.Client, url, &contracts); err != nil {
		return nil, fmt.Errorf("bitget contracts: %w", err)
	}

	out := make(map[string]float64, len(contracts))
	for _, c := range contracts {
		if !c.ForwardContractFlag {
			continue
		}
		pair, err := f.Pairs.Normalize(c.Symbol, "bitget")
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(c.ContractVal, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("bitget contracts: bad contract_val %q for %s", c.ContractVal, c.Symbol)
		}
		out[pair] = v
	}
	return out, nil
}
