package reader

import (
	"bytes"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func has(payload []byte, key string) bool {
	return jsonAPI.Get(payload, key).ValueType() != jsoniter.InvalidValue
}

// IsControl reports whether payload is a subscription ack, welcome, pong or
// other frame that carries no market data. Control frames never reach the
// parsers.
func IsControl(exchange string, payload []byte) bool {
	t := bytes.TrimSpace(payload)
	if len(t) == 0 || (t[0] != '{' && t[0] != '[') {
		// "pong" and similar bare text replies
		return true
	}
	switch exchange {
	case "huobi":
		if has(t, "ping") {
			return true
		}
		if has(t, "ch") {
			return false
		}
		return jsonAPI.Get(t, "op").ToString() != "notify"
	case "kucoin":
		return jsonAPI.Get(t, "type").ToString() != "message"
	case "zbg":
		return t[0] != '['
	case "binance":
		return has(t, "result") && has(t, "id")
	case "okx", "bitget":
		return has(t, "event")
	case "bybit":
		return has(t, "op") || has(t, "success")
	case "bitmex":
		return !has(t, "table")
	case "deribit":
		// JSON-RPC results and heartbeats; market data arrives as notifications
		return jsonAPI.Get(t, "method").ToString() != "subscription"
	}
	return false
}

// Reply returns the frame a server-initiated ping must be answered with, or
// nil when payload is not a ping.
func Reply(exchange string, payload []byte) []byte {
	if exchange != "huobi" {
		return nil
	}
	if ping := jsonAPI.Get(payload, "ping"); ping.ValueType() == jsoniter.NumberValue {
		return []byte(`{"pong":` + strconv.FormatInt(ping.ToInt64(), 10) + `}`)
	}
	if jsonAPI.Get(payload, "op").ToString() == "ping" {
		ts := jsonAPI.Get(payload, "ts").ToString()
		out, _ := jsonAPI.Marshal(map[string]string{"op": "pong", "ts": ts})
		return out
	}
	return nil
}

// keepalive returns the application-level ping a venue expects from the
// client, or nil when websocket control pings are enough.
func keepalive(exchange string, now time.Time) []byte {
	switch exchange {
	case "okx", "bitget", "bitmex":
		return []byte("ping")
	case "kucoin":
		return []byte(`{"id":"` + strconv.FormatInt(now.UnixMilli(), 10) + `","type":"ping"}`)
	case "bybit":
		return []byte(`{"op":"ping"}`)
	case "deribit":
		return []byte(`{"jsonrpc":"2.0","id":` + strconv.FormatInt(now.UnixMilli(), 10) + `,"method":"public/test","params":{}}`)
	}
	return nil
}
