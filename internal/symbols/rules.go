package symbols

import (
	"regexp"
	"strings"
)

type rule func(symbol string) (base, quote string, ok bool)

var rules = map[string]rule{
	"binance": binanceRule,
	"bitget":  bitgetRule,
	"bitmex":  bitmexRule,
	"bybit":   bybitRule,
	"deribit": deribitRule,
	"huobi":   huobiRule,
	"kucoin":  kucoinRule,
	"okx":     okxRule,
	"zbg":     zbgRule,
}

// Longer quotes first so USDT wins over USD.
var quotes = []string{
	"USDT", "BUSD", "USDC", "TUSD", "HUSD", "USDK", "DAI", "PAX",
	"USD", "BTC", "ETH", "BNB", "EUR", "GBP", "TRY", "KCS", "HT",
}

var (
	// futures month codes: BTCUSDZ21, XBTU21
	monthCode = regexp.MustCompile(`^([A-Z0-9]+?)([FGHJKMNQUVXZ])(\d{2})$`)
	// kucoin dated inverse futures: XBTMU21
	kucoinDated = regexp.MustCompile(`^([A-Z0-9]+)M([FGHJKMNQUVXZ])(\d{2})$`)
	// huobi dated inverse futures: BTC210625
	huobiDated = regexp.MustCompile(`^([A-Z]+)(\d{6})$`)
	sixDigits  = regexp.MustCompile(`^\d{6}$`)
)

// Stablecoin quotes that end in another quote. XBTUSD is XBT/USD, not
// XB/TUSD, so these only win when the shorter split does not leave a known
// asset, or when their own base is known.
var overlapping = map[string]string{
	"BUSD": "USD",
	"TUSD": "USD",
	"HUSD": "USD",
}

var knownAssets = map[string]bool{}

func init() {
	for _, a := range []string{
		"BTC", "XBT", "ETH", "BNB", "BCH", "BSV", "LTC", "XRP", "EOS", "TRX", "ETC", "LINK",
		"DOT", "ADA", "SOL", "DOGE", "FIL", "UNI", "AVAX", "MATIC", "XLM", "ATOM", "XTZ",
		"ALGO", "NEAR", "APT", "ARB", "OP", "SUI", "TON", "SHIB", "PEPE", "AAVE", "COMP",
		"SUSHI", "YFI", "MKR", "SNX", "CRV", "DYDX", "GALA", "SAND", "MANA", "AXS", "APE",
		"LUNA", "FTM", "KSM", "ZEC", "DASH", "XMR", "NEO", "ONT", "IOTA", "QTUM", "VET",
		"THETA", "ICP", "HBAR", "EGLD", "FLOW", "CHZ", "ENJ", "GRT", "WAVES", "KAVA", "ZIL",
		"BAT", "OMG", "HT", "OKB", "KCS", "FTT", "SRM", "RUNE", "INJ", "WLD", "TIA", "SEI",
	} {
		knownAssets[a] = true
	}
}

func splitQuote(s string) (string, string, bool) {
	s = strings.ToUpper(s)
	for _, q := range quotes {
		if !strings.HasSuffix(s, q) || len(s) <= len(q) {
			continue
		}
		base := s[:len(s)-len(q)]
		if shorter, ok := overlapping[q]; ok && !knownAssets[base] {
			if knownAssets[s[:len(s)-len(shorter)]] {
				continue
			}
		}
		return base, q, true
	}
	return "", "", false
}

func splitDelim(s, sep string) (string, string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// BTCUSDT, BTCUSD_PERP, BTCUSD_210625
func binanceRule(s string) (string, string, bool) {
	s = strings.ToUpper(s)
	if i := strings.IndexByte(s, '_'); i > 0 {
		suffix := s[i+1:]
		if suffix != "PERP" && !sixDigits.MatchString(suffix) {
			return "", "", false
		}
		s = s[:i]
	}
	return splitQuote(s)
}

// btcusdt, BTC_CQ, BTC-USD, BTC-USDT, BTC210625
func huobiRule(s string) (string, string, bool) {
	if strings.Contains(s, "-") {
		return splitDelim(strings.ToUpper(s), "-")
	}
	if i := strings.IndexByte(s, '_'); i > 0 {
		switch strings.ToUpper(s[i+1:]) {
		case "CW", "NW", "CQ", "NQ":
			return s[:i], "USD", true
		}
		return "", "", false
	}
	if m := huobiDated.FindStringSubmatch(s); m != nil {
		return m[1], "USD", true
	}
	return splitQuote(s)
}

// BTC-USDT, XBTUSDM, XBTUSDTM, XBTMU21
func kucoinRule(s string) (string, string, bool) {
	if strings.Contains(s, "-") {
		return splitDelim(strings.ToUpper(s), "-")
	}
	s = strings.ToUpper(s)
	if m := kucoinDated.FindStringSubmatch(s); m != nil {
		return m[1], "USD", true
	}
	if !strings.HasSuffix(s, "M") {
		return "", "", false
	}
	return splitQuote(strings.TrimSuffix(s, "M"))
}

// btc_usdt
func zbgRule(s string) (string, string, bool) {
	return splitDelim(strings.ToUpper(s), "_")
}

// BTC-USDT, BTC-USDT-SWAP, BTC-USD-210625
func okxRule(s string) (string, string, bool) {
	return splitDelim(strings.ToUpper(s), "-")
}

// XBTUSD, ETHUSD, XBTU21, XBTUSDT
func bitmexRule(s string) (string, string, bool) {
	s = strings.ToUpper(s)
	if m := monthCode.FindStringSubmatch(s); m != nil {
		if base, quote, ok := splitQuote(m[1]); ok {
			return base, quote, true
		}
		return m[1], "USD", true
	}
	return splitQuote(s)
}

// BTCUSDT, BTCUSD, BTCUSDZ21
func bybitRule(s string) (string, string, bool) {
	s = strings.ToUpper(s)
	if m := monthCode.FindStringSubmatch(s); m != nil {
		return splitQuote(m[1])
	}
	return splitQuote(s)
}

// BTC-PERPETUAL, ETH-25JUN21, SOL_USDC-PERPETUAL, BTC-25JUN21-50000-C
func deribitRule(s string) (string, string, bool) {
	head, _, found := strings.Cut(strings.ToUpper(s), "-")
	if !found || head == "" {
		return "", "", false
	}
	if base, quote, ok := strings.Cut(head, "_"); ok {
		return base, quote, base != "" && quote != ""
	}
	return head, "USD", true
}

// cmt_btcusdt, btcusd, BTCUSDT_UMCBL
func bitgetRule(s string) (string, string, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "cmt_")
	if i := strings.IndexByte(s, '_'); i > 0 {
		s = s[:i]
	}
	return splitQuote(s)
}
