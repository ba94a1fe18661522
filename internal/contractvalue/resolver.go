package contractvalue

import (
	"context"
	"fmt"
	"time"

	"cryptonorm/internal/metrics"
	"cryptonorm/logger"
	"cryptonorm/models"
)

// Fetcher loads live linear contract values for one exchange.
type Fetcher interface {
	Exchange() string
	Market() models.MarketType
	Fetch(ctx context.Context) (map[string]float64, error)
}

// Table resolves contract multipliers. It is immutable after Build.
type Table struct {
	linear map[string]map[models.MarketType]map[string]float64
}

// Options controls Build.
type Options struct {
	FetchTimeout time.Duration
}

// Build runs the two startup steps: copy the static snapshot, then overlay
// whatever each fetcher returns within the timeout. A failed fetch is logged
// and the static values for that exchange are kept.
func Build(ctx context.Context, opts Options, fetchers ...Fetcher) *Table {
	log := logger.GetLogger().WithComponent("contract_value")
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}

	t := &Table{linear: make(map[string]map[models.MarketType]map[string]float64)}
	for exchange, values := range staticLinear {
		t.merge(exchange, models.LinearSwap, values)
	}

	for _, f := range fetchers {
		fctx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
		start := time.Now()
		live, err := f.Fetch(fctx)
		cancel()
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"exchange": f.Exchange(),
				"market":   f.Market().String(),
			}).Warn("contract value fetch failed, using static table")
			metrics.EmitMetric(logger.GetLogger(), "contract_value", "metadata_fetch_failure", 1, "counter", logger.Fields{
				"exchange": f.Exchange(),
			})
			continue
		}
		t.merge(f.Exchange(), f.Market(), live)
		log.WithFields(logger.Fields{
			"exchange":    f.Exchange(),
			"market":      f.Market().String(),
			"pairs":       len(live),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("contract values loaded")
	}
	return t
}

// Static returns a table holding only the offline snapshot.
func Static() *Table {
	return Build(context.Background(), Options{})
}

func (t *Table) merge(exchange string, market models.MarketType, values map[string]float64) {
	byMarket, ok := t.linear[exchange]
	if !ok {
		byMarket = make(map[models.MarketType]map[string]float64)
		t.linear[exchange] = byMarket
	}
	dst, ok := byMarket[market]
	if !ok {
		dst = make(map[string]float64, len(values))
		byMarket[market] = dst
	}
	for pair, v := range values {
		dst[pair] = v
	}
}

// Resolve returns the contract value for pair. The second result is false for
// spot markets and for derivative pairs with no known multiplier.
func (t *Table) Resolve(exchange string, market models.MarketType, pair string) (float64, bool) {
	if !market.IsDerivative() {
		return 0, false
	}
	if v, ok := fixedValue(exchange, market, pair); ok {
		return v, true
	}
	if t == nil {
		return 0, false
	}
	v, ok := t.linear[exchange][market][pair]
	return v, ok
}

// Len reports how many per-pair values are known for an exchange and market.
func (t *Table) Len(exchange string, market models.MarketType) int {
	return len(t.linear[exchange][market])
}

func (t *Table) String() string {
	n := 0
	for _, byMarket := range t.linear {
		for _, values := range byMarket {
			n += len(values)
		}
	}
	return fmt.Sprintf("contractvalue.Table{exchanges=%d pairs=%d}", len(t.linear), n)
}
