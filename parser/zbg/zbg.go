// Package zbg parses ZBG spot frames, which are positional JSON arrays.
//
//	trade     ["T", market_id, ts_sec, symbol, side, price, qty]
//	snapshot  [["AE", market_id, symbol, ts_sec, {"asks": [...]}, {"bids": [...]}]]
//	delta     ["E", market_id, ts_sec, symbol, "BID"|"ASK", price, qty]
//
// Trades also arrive batched as an array of trade rows.
package zbg

import (
	"bytes"
	"encoding/json"
	"strconv"

	"cryptonorm/models"
	"cryptonorm/parser"
)

const Name = "zbg"

var sides = parser.SideVocabulary{Exchange: Name, Sell: []string{"ask"}, Buy: []string{"bid"}}

type Parser struct {
	parser.Unsupported
	parser.Capabilities
	deps parser.Deps
}

func New(deps parser.Deps) *Parser {
	return &Parser{
		Unsupported:  parser.Unsupported{Name: Name},
		Capabilities: parser.Capabilities{models.Spot: {models.Trade, models.L2Event}},
		deps:         deps,
	}
}

type row []json.RawMessage

// rows decodes a frame that is either one row or an array of rows. nested
// reports which of the two shapes it was.
func rows(raw string) (out []row, nested bool, err error) {
	var top []json.RawMessage
	if err := parser.Decode(raw, &top); err != nil {
		return nil, false, err
	}
	if len(top) == 0 {
		return nil, false, parser.Malformedf("empty frame")
	}
	if bytes.HasPrefix(bytes.TrimSpace(top[0]), []byte("[")) {
		out = make([]row, 0, len(top))
		for _, r := range top {
			var rw row
			if err := parser.DecodeBytes(r, &rw); err != nil {
				return nil, true, err
			}
			out = append(out, rw)
		}
		return out, true, nil
	}
	return []row{top}, false, nil
}

// text reads a string field; numeric fields are returned in their literal form.
func (r row) text(i int) (string, error) {
	if i >= len(r) {
		return "", parser.Malformedf("row has %d fields, want field %d", len(r), i)
	}
	v := bytes.TrimSpace(r[i])
	if len(v) > 0 && v[0] == '"' {
		s, err := strconv.Unquote(string(v))
		if err != nil {
			return "", parser.Malformedf("bad string field %d", i)
		}
		return s, nil
	}
	if _, err := parser.ParseDecimal(string(v)); err != nil {
		return "", err
	}
	return string(v), nil
}

func (r row) number(i int) (parser.Number, error) {
	var n parser.Number
	if i >= len(r) {
		return n, parser.Malformedf("row has %d fields, want field %d", len(r), i)
	}
	err := parser.DecodeBytes(r[i], &n)
	return n, err
}

func (r row) tag() string {
	s, _ := r.text(0)
	return s
}

func secondsToMillis(n parser.Number) int64 {
	return n.Decimal().Shift(3).IntPart()
}

func (p *Parser) ParseTrade(market models.MarketType, raw string) ([]*models.TradeMsg, error) {
	if err := parser.Check(p, market, models.Trade); err != nil {
		return nil, err
	}
	rs, _, err := rows(raw)
	if err != nil {
		return nil, err
	}
	trades := make([]*models.TradeMsg, 0, len(rs))
	for _, r := range rs {
		t, err := p.trade(market, r)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (p *Parser) trade(market models.MarketType, r row) (*models.TradeMsg, error) {
	if r.tag() != "T" || len(r) < 7 {
		return nil, parser.Malformedf("not a trade row")
	}
	ts, err := r.number(2)
	if err != nil {
		return nil, err
	}
	symbol, err := r.text(3)
	if err != nil {
		return nil, err
	}
	side, err := r.text(4)
	if err != nil {
		return nil, err
	}
	price, err := r.number(5)
	if err != nil {
		return nil, err
	}
	qty, err := r.number(6)
	if err != nil {
		return nil, err
	}
	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	millis := secondsToMillis(ts)
	o := parser.SpotOrder(price, qty)
	return &models.TradeMsg{
		Exchange:      Name,
		MarketType:    market,
		Symbol:        symbol,
		Pair:          pair,
		MsgType:       models.Trade,
		Timestamp:     millis,
		Price:         o.Price,
		QuantityBase:  o.QuantityBase,
		QuantityQuote: o.QuantityQuote,
		Side:          sides.Side(side),
		// the feed has no trade id; the second-resolution time is the closest stable key
		TradeID: strconv.FormatInt(millis, 10),
		Raw:     parser.Raw(r),
	}, nil
}

// ParseL2 treats the nested "AE" shape as a full book and the flat "E" row as
// a single level change.
func (p *Parser) ParseL2(market models.MarketType, raw string) ([]*models.OrderBookMsg, error) {
	if err := parser.Check(p, market, models.L2Event); err != nil {
		return nil, err
	}
	rs, nested, err := rows(raw)
	if err != nil {
		return nil, err
	}
	if nested {
		books := make([]*models.OrderBookMsg, 0, len(rs))
		for _, r := range rs {
			b, err := p.snapshot(market, r)
			if err != nil {
				return nil, err
			}
			books = append(books, b)
		}
		return books, nil
	}
	b, err := p.delta(market, rs[0])
	if err != nil {
		return nil, err
	}
	return []*models.OrderBookMsg{b}, nil
}

func (p *Parser) snapshot(market models.MarketType, r row) (*models.OrderBookMsg, error) {
	if r.tag() != "AE" || len(r) < 6 {
		return nil, parser.Malformedf("not a depth snapshot row")
	}
	symbol, err := r.text(2)
	if err != nil {
		return nil, err
	}
	ts, err := r.number(3)
	if err != nil {
		return nil, err
	}
	var asksObj struct {
		Asks []parser.Level `json:"asks"`
	}
	var bidsObj struct {
		Bids []parser.Level `json:"bids"`
	}
	if err := parser.DecodeBytes(r[4], &asksObj); err != nil {
		return nil, err
	}
	if err := parser.DecodeBytes(r[5], &bidsObj); err != nil {
		return nil, err
	}
	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	asks, err := parser.Levels(asksObj.Asks, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	bids, err := parser.Levels(bidsObj.Bids, parser.SpotOrder)
	if err != nil {
		return nil, err
	}
	parser.SortAsks(asks)
	return &models.OrderBookMsg{
		Exchange:   Name,
		MarketType: market,
		Symbol:     symbol,
		Pair:       pair,
		MsgType:    models.L2Event,
		Timestamp:  secondsToMillis(ts),
		Asks:       asks,
		Bids:       bids,
		Snapshot:   true,
		Raw:        parser.Raw(r),
	}, nil
}

func (p *Parser) delta(market models.MarketType, r row) (*models.OrderBookMsg, error) {
	if r.tag() != "E" || len(r) < 7 {
		return nil, parser.Malformedf("not a depth delta row")
	}
	ts, err := r.number(2)
	if err != nil {
		return nil, err
	}
	symbol, err := r.text(3)
	if err != nil {
		return nil, err
	}
	side, err := r.text(4)
	if err != nil {
		return nil, err
	}
	price, err := r.number(5)
	if err != nil {
		return nil, err
	}
	qty, err := r.number(6)
	if err != nil {
		return nil, err
	}
	pair, err := p.deps.Pair(symbol, Name)
	if err != nil {
		return nil, err
	}
	b := &models.OrderBookMsg{
		Exchange:   Name,
		MarketType: market,
		Symbol:     symbol,
		Pair:       pair,
		MsgType:    models.L2Event,
		Timestamp:  secondsToMillis(ts),
		Asks:       []models.Order{},
		Bids:       []models.Order{},
		Raw:        parser.Raw(r),
	}
	// "BID" is the only bid token; everything else updates the ask side
	if side == "BID" {
		b.Bids = append(b.Bids, parser.SpotOrder(price, qty))
	} else {
		b.Asks = append(b.Asks, parser.SpotOrder(price, qty))
	}
	return b, nil
}
