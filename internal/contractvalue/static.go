package contractvalue

import "cryptonorm/models"

// Offline snapshots of linear contract multipliers, used when the exchange
// metadata endpoints are unreachable at startup.
var staticLinear = map[string]map[string]float64{
	"bitget": {
		"AAVE/USDT": 0.1, "ADA/USDT": 100, "ALGO/USDT": 10, "ATOM/USDT": 1,
		"BCH/USDT": 0.01, "BTC/USDT": 0.001, "COMP/USDT": 0.01, "DOGE/USDT": 10,
		"DOT/USDT": 1, "EOS/USDT": 1, "ETC/USDT": 1, "ETH/USDT": 0.1,
		"FIL/USDT": 0.1, "LINK/USDT": 1, "LTC/USDT": 0.1, "SUSHI/USDT": 1,
		"TRX/USDT": 100, "UNI/USDT": 1, "XLM/USDT": 10, "XRP/USDT": 10,
		"XTZ/USDT": 1, "YFI/USDT": 0.0001, "ZEC/USDT": 0.1,
	},
	"kucoin": {
		"1INCH/USDT": 1, "AAVE/USDT": 0.01, "ADA/USDT": 10, "ALGO/USDT": 1,
		"ATOM/USDT": 0.1, "AVAX/USDT": 0.1, "BAND/USDT": 0.1, "BAT/USDT": 1,
		"BCH/USDT": 0.01, "BNB/USDT": 0.01, "BSV/USDT": 0.01, "BTC/USDT": 0.001,
		"BTT/USDT": 1000, "CHZ/USDT": 1, "COMP/USDT": 0.01, "CRV/USDT": 1,
		"DASH/USDT": 0.01, "DENT/USDT": 100, "DGB/USDT": 10, "DOGE/USDT": 100,
		"DOT/USDT": 1, "ENJ/USDT": 1, "EOS/USDT": 1, "ETC/USDT": 0.1,
		"ETH/USDT": 0.01, "FIL/USDT": 0.1, "FTM/USDT": 1, "GRT/USDT": 1,
		"ICP/USDT": 0.01, "IOST/USDT": 100, "KSM/USDT": 0.01, "LINK/USDT": 0.1,
		"LTC/USDT": 0.1, "LUNA/USDT": 1, "MANA/USDT": 1, "MATIC/USDT": 10,
		"MIR/USDT": 0.1, "MKR/USDT": 0.001, "NEO/USDT": 0.1, "OCEAN/USDT": 1,
		"ONT/USDT": 1, "QTUM/USDT": 0.1, "RVN/USDT": 10, "SHIB/USDT": 100000,
		"SNX/USDT": 0.1, "SOL/USDT": 0.1, "SUSHI/USDT": 1, "SXP/USDT": 1,
		"THETA/USDT": 0.1, "TRX/USDT": 100, "UNI/USDT": 1, "VET/USDT": 100,
		"WAVES/USDT": 0.1, "XEM/USDT": 1, "XLM/USDT": 10, "XMR/USDT": 0.01,
		"XRP/USDT": 10, "XTZ/USDT": 1, "YFI/USDT": 0.0001, "ZEC/USDT": 0.01,
	},
	"okx": {
		"ADA/USDT": 100, "AVAX/USDT": 1, "BCH/USDT": 0.1, "BTC/USDT": 0.01,
		"DOGE/USDT": 1000, "DOT/USDT": 1, "EOS/USDT": 10, "ETC/USDT": 10,
		"ETH/USDT": 0.1, "FIL/USDT": 0.1, "LINK/USDT": 1, "LTC/USDT": 1,
		"SOL/USDT": 1, "TRX/USDT": 1000, "XRP/USDT": 100,
	},
}

// fixedValue covers markets whose multiplier does not vary per listed pair.
// The second result is false when the market has no fixed value.
func fixedValue(exchange string, market models.MarketType, pair string) (float64, bool) {
	switch exchange {
	case "kucoin":
		if market == models.InverseSwap || market == models.InverseFuture {
			return 1, true
		}
	case "bitget":
		if market == models.InverseSwap {
			return 1, true
		}
	case "bitmex", "bybit":
		switch {
		case market.IsInverse():
			return 1, true
		case market.IsLinear():
			return 1, true
		}
	case "binance", "okx":
		if market.IsInverse() {
			if pair == "BTC/USD" {
				return 100, true
			}
			return 10, true
		}
		if exchange == "binance" && market.IsLinear() {
			return 1, true
		}
	case "deribit":
		if market.IsInverse() {
			if pair == "BTC/USD" {
				return 10, true
			}
			return 1, true
		}
	case "huobi":
		if market.IsInverse() {
			if pair == "BTC/USD" {
				return 100, true
			}
			return 10, true
		}
	}
	return 0, false
}
