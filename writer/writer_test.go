package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptonorm/models"
)

func trade(symbol string) *models.TradeMsg {
	return &models.TradeMsg{
		Exchange: "huobi", MarketType: models.Spot, Symbol: symbol, Pair: "BTC/USDT",
		MsgType: models.Trade, Timestamp: 1620000000000, Price: 50000, QuantityBase: 0.5,
		QuantityQuote: 25000, Side: models.Buy, TradeID: "1",
	}
}

func TestFileSinkPathLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)
	r := models.Route{Exchange: "binance", MarketType: models.LinearSwap, MsgType: models.FundingRate}
	assert.Equal(t, filepath.Join(dir, "funding_rate", "binance", "linear_swap", "binance.linear_swap.funding_rate"), s.Path(r))
}

func TestFileSinkConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				line := []byte(fmt.Sprintf(`{"worker":%d,"n":%d}`, i, j))
				assert.NoError(t, s.Write(context.Background(), trade("btcusdt"), line))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	f, err := os.Open(s.Path(trade("btcusdt").Route()))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		assert.True(t, strings.HasPrefix(sc.Text(), `{"worker":`), sc.Text())
		lines++
	}
	assert.Equal(t, 400, lines)
}

func TestFileSinkReopensAfterClose(t *testing.T) {
	s, err := NewFileSink(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), trade("a"), []byte(`{}`)))
	require.NoError(t, s.Close())
	require.NoError(t, s.Write(context.Background(), trade("a"), []byte(`{}`)))
	require.NoError(t, s.Close())

	b, err := os.ReadFile(s.Path(trade("a").Route()))
	require.NoError(t, err)
	assert.Equal(t, "{}\n{}\n", string(b))
}

func TestNewFileSinkRequiresDir(t *testing.T) {
	_, err := NewFileSink("")
	assert.Error(t, err)
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []string
	fail     error
	closed   bool
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	f.mu.Lock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, string(message.([]byte)))
	f.mu.Unlock()
	cmd.SetVal(1)
	return cmd
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestRedisSinkChannels(t *testing.T) {
	pub := &fakePublisher{}
	s := newRedisSink(pub, "carbonbot")
	require.NoError(t, s.Write(context.Background(), trade("btcusdt"), []byte(`{"a":1}`)))
	book := &models.OrderBookMsg{Exchange: "kucoin", MarketType: models.Spot, MsgType: models.L2Event}
	require.NoError(t, s.Write(context.Background(), book, []byte(`{"b":2}`)))

	assert.Equal(t, []string{"carbonbot:trade", "carbonbot:l2_event"}, pub.channels)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, pub.payloads)
	require.NoError(t, s.Close())
	assert.True(t, pub.closed)
}

func TestRedisSinkError(t *testing.T) {
	s := newRedisSink(&fakePublisher{fail: errors.New("connection refused")}, "")
	err := s.Write(context.Background(), trade("x"), []byte(`{}`))
	var se *SinkError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "redis", se.Sink)
	assert.Equal(t, "cryptonorm:trade", s.Channel(models.Trade))
}

func TestNewRedisSinkBadURL(t *testing.T) {
	_, err := NewRedisSink("not-a-url://", "x")
	assert.Error(t, err)
}

type fakeKafka struct {
	msgs []kafka.Message
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error { return nil }

func TestKafkaSinkTopicAndKey(t *testing.T) {
	fk := &fakeKafka{}
	s := newKafkaSink(fk, "md")
	require.NoError(t, s.Write(context.Background(), trade("btcusdt"), []byte(`{}`)))
	require.Len(t, fk.msgs, 1)
	assert.Equal(t, "md.trade", fk.msgs[0].Topic)
	assert.Equal(t, "btcusdt", string(fk.msgs[0].Key))

	_, err := NewKafkaSink(nil, "md")
	assert.Error(t, err)
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body [][]byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.keys = append(f.keys, *in.Key)
	f.body = append(f.body, b)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveSinkFlushesOnSize(t *testing.T) {
	put := &fakePutter{}
	s := newArchiveSink(ArchiveConfig{Bucket: "b", Prefix: "normalized", MaxRecords: 3, FlushInterval: time.Hour}, put)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	book := &models.OrderBookMsg{
		Exchange: "zbg", MarketType: models.Spot, Symbol: "BTC_USDT", Pair: "BTC/USDT", MsgType: models.L2Event,
		Asks: []models.Order{{Price: 1, QuantityBase: 1, QuantityQuote: 1}, {Price: 2, QuantityBase: 1, QuantityQuote: 2}},
		Bids: []models.Order{{Price: 0.5, QuantityBase: 1, QuantityQuote: 0.5}},
	}
	require.NoError(t, s.Write(context.Background(), book, nil))
	require.Len(t, put.keys, 1)

	key := put.keys[0]
	assert.True(t, strings.HasPrefix(key, "normalized/exchange=zbg/market_type=spot/msg_type=l2_event/year=2024/month=05/day=06/hour=07/"), key)
	assert.True(t, strings.HasSuffix(key, ".parquet"))
	assert.Equal(t, "PAR1", string(put.body[0][:4]))
}

func TestArchiveSinkCloseFlushes(t *testing.T) {
	put := &fakePutter{}
	s := newArchiveSink(ArchiveConfig{Bucket: "b", MaxRecords: 100, FlushInterval: time.Hour}, put)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Write(context.Background(), trade("btcusdt"), nil))
	rate := &models.FundingRateMsg{Exchange: "bitmex", MarketType: models.InverseSwap, MsgType: models.FundingRate, FundingRate: 0.0001}
	require.NoError(t, s.Write(context.Background(), rate, nil))
	assert.Empty(t, put.keys)

	require.NoError(t, s.Close())
	assert.Len(t, put.keys, 2)
}

func TestRecordsOf(t *testing.T) {
	assert.Len(t, recordsOf(trade("x")), 1)
	ticker := &models.TickerMsg{Close: 3, Volume: 2}
	recs := recordsOf(ticker)
	require.Len(t, recs, 1)
	assert.Equal(t, 3.0, recs[0].Price)
}

func TestArchiveSinkRecordsCatalog(t *testing.T) {
	dir := t.TempDir()
	cat, err := NewCatalog(dir)
	require.NoError(t, err)

	put := &fakePutter{}
	s := newArchiveSink(ArchiveConfig{Bucket: "b", MaxRecords: 1, FlushInterval: time.Hour}, put)
	s.catalog = cat
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	require.NoError(t, s.Write(context.Background(), trade("btcusdt"), nil))
	require.NoError(t, s.Write(context.Background(), trade("btcusdt"), nil))
	require.Len(t, put.keys, 2)

	name := TableName(trade("x").Route())
	assert.Equal(t, "huobi_spot_trade", name)

	b, err := os.ReadFile(filepath.Join(dir, name, "metadata", "metadata.json"))
	require.NoError(t, err)
	var meta TableMetadata
	require.NoError(t, catalogJSON.Unmarshal(b, &meta))
	assert.Equal(t, 2, meta.FormatVersion)
	require.Len(t, meta.Snapshots, 2)
	assert.Greater(t, meta.Snapshots[1].SnapshotID, meta.Snapshots[0].SnapshotID)
	assert.Equal(t, meta.Snapshots[1].SnapshotID, meta.CurrentSnapshotID)

	manifest, err := os.ReadFile(filepath.Join(dir, name, "metadata", meta.Snapshots[0].Manifest))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "s3://b/"+put.keys[0])
	assert.Contains(t, string(manifest), `"hour": "07"`)

	entry, err := os.ReadFile(filepath.Join(dir, name+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(entry), `"name": "huobi_spot_trade"`)
}

func TestNewCatalogRequiresDir(t *testing.T) {
	_, err := NewCatalog("")
	assert.Error(t, err)
}
