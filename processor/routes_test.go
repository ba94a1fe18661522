package processor

import (
	"errors"
	"testing"

	"cryptonorm/internal/contractvalue"
	"cryptonorm/internal/symbols"
	"cryptonorm/models"
	"cryptonorm/parser"
)

func testRoutes() *Routes {
	return NewRoutes(parser.Deps{Pairs: symbols.NewNormalizer(nil), Contracts: contractvalue.Static()})
}

func TestRoutesValidate(t *testing.T) {
	r := testRoutes()
	tests := []struct {
		route   models.Route
		wantErr bool
	}{
		{models.Route{Exchange: "huobi", MarketType: models.Spot, MsgType: models.Trade}, false},
		{models.Route{Exchange: "huobi", MarketType: models.InverseSwap, MsgType: models.FundingRate}, false},
		{models.Route{Exchange: "kucoin", MarketType: models.Spot, MsgType: models.L2Event}, false},
		{models.Route{Exchange: "zbg", MarketType: models.Spot, MsgType: models.L2Event}, false},
		{models.Route{Exchange: "binance", MarketType: models.Spot, MsgType: models.Ticker}, false},
		{models.Route{Exchange: "bitmex", MarketType: models.InverseSwap, MsgType: models.FundingRate}, false},
		{models.Route{Exchange: "zbg", MarketType: models.LinearSwap, MsgType: models.Trade}, true},
		{models.Route{Exchange: "huobi", MarketType: models.Spot, MsgType: models.L3Event}, true},
		{models.Route{Exchange: "okx", MarketType: models.Spot, MsgType: models.L2Snapshot}, true},
		{models.Route{Exchange: "deribit", MarketType: models.InverseSwap, MsgType: models.FundingRate}, false},
		{models.Route{Exchange: "deribit", MarketType: models.InverseFuture, MsgType: models.FundingRate}, true},
		{models.Route{Exchange: "deribit", MarketType: models.EuropeanOption, MsgType: models.Trade}, true},
		{models.Route{Exchange: "coinbase", MarketType: models.Spot, MsgType: models.Trade}, true},
	}
	for _, tt := range tests {
		err := r.Validate(tt.route)
		if tt.wantErr {
			if !errors.Is(err, parser.ErrUnsupportedMessageType) {
				t.Errorf("Validate(%s) = %v, want ErrUnsupportedMessageType", tt.route, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Validate(%s): %v", tt.route, err)
		}
	}
}

func TestRoutesExchanges(t *testing.T) {
	got := testRoutes().Exchanges()
	want := []string{"binance", "bitget", "bitmex", "bybit", "deribit", "huobi", "kucoin", "okx", "zbg"}
	if len(got) != len(want) {
		t.Fatalf("Exchanges() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Exchanges()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseDispatchesByMessageType(t *testing.T) {
	r := testRoutes()
	route := models.Route{Exchange: "binance", MarketType: models.Spot, MsgType: models.L2Event}
	p, err := r.Lookup(route)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	msgs, err := Parse(p, route, `{"e":"depthUpdate","E":123456789,"s":"BNBBTC","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"]]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d records, want 1", len(msgs))
	}
	book, ok := msgs[0].(*models.OrderBookMsg)
	if !ok {
		t.Fatalf("record is %T, want *models.OrderBookMsg", msgs[0])
	}
	if book.Snapshot || book.Pair != "BNB/BTC" {
		t.Errorf("unexpected book %+v", book)
	}

	_, err = Parse(p, models.Route{Exchange: "binance", MarketType: models.Spot, MsgType: models.L3Snapshot}, "{}")
	if !errors.Is(err, parser.ErrUnsupportedMessageType) {
		t.Errorf("l3_snapshot: got %v", err)
	}
}
