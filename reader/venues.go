package reader

import (
	"fmt"
	"strings"

	"cryptonorm/models"
)

var defaultURLs = map[string]map[models.MarketType]string{
	"huobi": {
		models.Spot:          "wss://api.huobi.pro/ws",
		models.InverseFuture: "wss://api.hbdm.com/ws",
		models.InverseSwap:   "wss://api.hbdm.com/swap-ws",
		models.LinearSwap:    "wss://api.hbdm.com/linear-swap-ws",
	},
	"binance": {
		models.Spot:        "wss://stream.binance.com:9443/ws",
		models.LinearSwap:  "wss://fstream.binance.com/ws",
		models.InverseSwap: "wss://dstream.binance.com/ws",
	},
	"okx": {
		models.Spot:        "wss://ws.okx.com:8443/ws/v5/public",
		models.LinearSwap:  "wss://ws.okx.com:8443/ws/v5/public",
		models.InverseSwap: "wss://ws.okx.com:8443/ws/v5/public",
	},
	"bybit": {
		models.LinearSwap:  "wss://stream.bybit.com/v5/public/linear",
		models.InverseSwap: "wss://stream.bybit.com/v5/public/inverse",
	},
	"bitmex": {
		models.InverseSwap: "wss://ws.bitmex.com/realtime",
	},
	"bitget": {
		models.LinearSwap:  "wss://csocketapi.bitget.com/ws/v1",
		models.InverseSwap: "wss://csocketapi.bitget.com/ws/v1",
	},
	"zbg": {
		models.Spot: "wss://kline.zbg.com/websocket",
	},
	"deribit": {
		models.InverseFuture: "wss://www.deribit.com/ws/api/v2",
		models.InverseSwap:   "wss://www.deribit.com/ws/api/v2",
	},
}

// DefaultURL is the public endpoint for route. Huobi funding rates are only
// pushed on the notification endpoints. KuCoin needs a per-connection token
// and therefore has no default.
func DefaultURL(route models.Route) (string, error) {
	if route.Exchange == "huobi" && route.MsgType == models.FundingRate {
		switch route.MarketType {
		case models.InverseSwap:
			return "wss://api.hbdm.com/swap-notification", nil
		case models.LinearSwap:
			return "wss://api.hbdm.com/linear-swap-notification", nil
		}
	}
	if u, ok := defaultURLs[route.Exchange][route.MarketType]; ok {
		return u, nil
	}
	return "", fmt.Errorf("no default websocket url for %s, set source.url", route)
}

// SubscribeFrames builds the subscription requests for symbols. Venues whose
// topic grammar is not known here need explicit source.subscriptions.
func SubscribeFrames(route models.Route, symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols configured for %s", route)
	}
	var frames []string
	switch route.Exchange {
	case "huobi":
		for _, s := range symbols {
			switch route.MsgType {
			case models.Trade:
				frames = append(frames, fmt.Sprintf(`{"sub":"market.%s.trade.detail","id":"%s"}`, s, s))
			case models.L2Event:
				frames = append(frames, fmt.Sprintf(`{"sub":"market.%s.mbp.400","id":"%s"}`, s, s))
			case models.FundingRate:
				frames = append(frames, fmt.Sprintf(`{"op":"sub","topic":"public.%s.funding_rate"}`, s))
			}
		}
	case "kucoin":
		topic := map[models.MessageType]string{models.Trade: "/market/match", models.L2Event: "/market/level2"}[route.MsgType]
		if route.MarketType != models.Spot {
			topic = "/contractMarket/execution"
		}
		frames = append(frames, fmt.Sprintf(`{"id":"1","type":"subscribe","topic":"%s:%s","response":true}`, topic, strings.Join(symbols, ",")))
	case "binance":
		suffix := map[models.MessageType]string{
			models.Trade:       "@aggTrade",
			models.L2Event:     "@depth@100ms",
			models.FundingRate: "@markPrice",
			models.Ticker:      "@ticker",
		}[route.MsgType]
		params := make([]string, len(symbols))
		for i, s := range symbols {
			params[i] = `"` + strings.ToLower(s) + suffix + `"`
		}
		frames = append(frames, fmt.Sprintf(`{"method":"SUBSCRIBE","params":[%s],"id":1}`, strings.Join(params, ",")))
	case "okx":
		channel := map[models.MessageType]string{
			models.Trade:       "trades",
			models.L2Event:     "books",
			models.FundingRate: "funding-rate",
			models.Ticker:      "tickers",
		}[route.MsgType]
		args := make([]string, len(symbols))
		for i, s := range symbols {
			args[i] = fmt.Sprintf(`{"channel":"%s","instId":"%s"}`, channel, s)
		}
		frames = append(frames, fmt.Sprintf(`{"op":"subscribe","args":[%s]}`, strings.Join(args, ",")))
	case "bitmex", "bitget":
		table := map[string]map[models.MessageType]string{
			"bitmex": {models.Trade: "trade", models.FundingRate: "funding"},
			"bitget": {models.Trade: "swap/trade", models.FundingRate: "swap/funding_rate"},
		}[route.Exchange][route.MsgType]
		args := make([]string, len(symbols))
		for i, s := range symbols {
			args[i] = `"` + table + ":" + s + `"`
		}
		frames = append(frames, fmt.Sprintf(`{"op":"subscribe","args":[%s]}`, strings.Join(args, ",")))
	case "deribit":
		// funding is read off the perpetual ticker
		format := map[models.MessageType]string{
			models.Trade:       "trades.%s.raw",
			models.L2Event:     "book.%s.100ms",
			models.Ticker:      "ticker.%s.100ms",
			models.FundingRate: "ticker.%s.100ms",
		}[route.MsgType]
		if format == "" {
			break
		}
		channels := make([]string, len(symbols))
		for i, s := range symbols {
			channels[i] = `"` + fmt.Sprintf(format, s) + `"`
		}
		frames = append(frames, fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"public/subscribe","params":{"channels":[%s]}}`, strings.Join(channels, ",")))
	default:
		return nil, fmt.Errorf("no subscription grammar for %s, set source.subscriptions", route.Exchange)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no subscription grammar for %s", route)
	}
	return frames, nil
}

// BybitTopics returns the v5 public topics for symbols.
func BybitTopics(route models.Route, symbols []string) []string {
	topics := make([]string, 0, len(symbols))
	for _, s := range symbols {
		switch route.MsgType {
		case models.Trade:
			topics = append(topics, "publicTrade."+s)
		case models.L2Event:
			topics = append(topics, "orderbook.50."+s)
		}
	}
	return topics
}
