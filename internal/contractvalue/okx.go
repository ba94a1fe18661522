package contractvalue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cryptonorm/internal/symbols"
	"cryptonorm/models"
)

const okxInstrumentsURL = "https://www.okx.com/api/v5/public/instruments?instType=SWAP"

// OKXFetcher reads ctVal of every linear (USDT or USDC settled) perpetual
// swap from the public instruments endpoint.
type OKXFetcher struct {
	URL    string
	Client *http.Client
	Pairs  *symbols.Normalizer
}

type okxInstruments struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		CtType string `json:"ctType"`
		CtVal  string `json:"ctVal"`
		State  string `json:"state"`
	} `json:"data"`
}

func (f *OKXFetcher) Exchange() string          { return "okx" }
func (f *OKXFetcher) Market() models.MarketType { return models.LinearSwap }

func (f *OKXFetcher) Fetch(ctx context.Context) (map[string]float64, error) {
	url := f.URL
	if url == "" {
		url = okxInstrumentsURL
	}
	var resp okxInstruments
	if err := getJSON(ctx, f.Client, url, &resp); err != nil {
		return nil, fmt.Errorf("okx instruments: %w", err)
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("okx instruments: code %s: %s", resp.Code, resp.Msg)
	}

	out := make(map[string]float64, len(resp.Data))
	for _, inst := range resp.Data {
		if inst.CtType != "linear" || (inst.State != "" && inst.State != "live") {
			continue
		}
		pair, err := f.Pairs.Normalize(inst.InstID, "okx")
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(inst.CtVal), 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("okx instruments: bad ctVal %q for %s", inst.CtVal, inst.InstID)
		}
		out[pair] = v
	}
	return out, nil
}
