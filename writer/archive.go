package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"cryptonorm/logger"
	"cryptonorm/models"
)

// archiveRecord is one parquet row. Order books contribute one row per level,
// every other record type one row.
type archiveRecord struct {
	Exchange         string   `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarketType       string   `parquet:"name=market_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	MsgType          string   `parquet:"name=msg_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol           string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pair             string   `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp        int64    `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Side             string   `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price            float64  `parquet:"name=price, type=DOUBLE"`
	QuantityBase     float64  `parquet:"name=quantity_base, type=DOUBLE"`
	QuantityQuote    float64  `parquet:"name=quantity_quote, type=DOUBLE"`
	QuantityContract *float64 `parquet:"name=quantity_contract, type=DOUBLE, repetitiontype=OPTIONAL"`
	Snapshot         bool     `parquet:"name=snapshot, type=BOOLEAN"`
	TradeID          string   `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRate      *float64 `parquet:"name=funding_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	FundingTime      *int64   `parquet:"name=funding_time, type=INT64, repetitiontype=OPTIONAL"`
}

func recordsOf(msg models.Message) []archiveRecord {
	switch m := msg.(type) {
	case *models.TradeMsg:
		return []archiveRecord{{
			Exchange: m.Exchange, MarketType: string(m.MarketType), MsgType: string(m.MsgType),
			Symbol: m.Symbol, Pair: m.Pair, Timestamp: m.Timestamp, Side: string(m.Side),
			Price: m.Price, QuantityBase: m.QuantityBase, QuantityQuote: m.QuantityQuote,
			QuantityContract: m.QuantityContract, TradeID: m.TradeID,
		}}
	case *models.OrderBookMsg:
		recs := make([]archiveRecord, 0, len(m.Asks)+len(m.Bids))
		level := func(side string, o models.Order) archiveRecord {
			return archiveRecord{
				Exchange: m.Exchange, MarketType: string(m.MarketType), MsgType: string(m.MsgType),
				Symbol: m.Symbol, Pair: m.Pair, Timestamp: m.Timestamp, Side: side,
				Price: o.Price, QuantityBase: o.QuantityBase, QuantityQuote: o.QuantityQuote,
				QuantityContract: o.QuantityContract, Snapshot: m.Snapshot,
			}
		}
		for _, o := range m.Asks {
			recs = append(recs, level("ask", o))
		}
		for _, o := range m.Bids {
			recs = append(recs, level("bid", o))
		}
		return recs
	case *models.FundingRateMsg:
		rate, at := m.FundingRate, m.FundingTime
		return []archiveRecord{{
			Exchange: m.Exchange, MarketType: string(m.MarketType), MsgType: string(m.MsgType),
			Symbol: m.Symbol, Pair: m.Pair, Timestamp: m.Timestamp,
			FundingRate: &rate, FundingTime: &at,
		}}
	case *models.TickerMsg:
		return []archiveRecord{{
			Exchange: m.Exchange, MarketType: string(m.MarketType), MsgType: string(m.MsgType),
			Symbol: m.Symbol, Pair: m.Pair, Timestamp: m.Timestamp,
			Price: m.Close, QuantityBase: m.Volume, QuantityQuote: m.QuoteVolume,
		}}
	}
	return nil
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveConfig configures the S3 parquet archive.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	FlushInterval   time.Duration
	MaxRecords      int
	// CatalogDir, when set, records every uploaded object in a local catalog.
	CatalogDir string
}

// ArchiveSink buffers records per route and uploads them as SNAPPY parquet
// objects, on size or on every flush interval.
type ArchiveSink struct {
	cfg     ArchiveConfig
	client  objectPutter
	catalog *Catalog
	now     func() time.Time

	mu      sync.Mutex
	buffer  map[models.Route][]archiveRecord
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	log     *logger.Log
}

func NewArchiveSink(ctx context.Context, cfg ArchiveConfig) (*ArchiveSink, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	sink := newArchiveSink(cfg, client)
	if cfg.CatalogDir != "" {
		if sink.catalog, err = NewCatalog(cfg.CatalogDir); err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
	}
	return sink, nil
}

func newArchiveSink(cfg ArchiveConfig, client objectPutter) *ArchiveSink {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 50000
	}
	return &ArchiveSink{
		cfg:    cfg,
		client: client,
		now:    time.Now,
		buffer: make(map[models.Route][]archiveRecord),
		log:    logger.GetLogger(),
	}
}

func (s *ArchiveSink) Name() string { return "s3" }

// Start launches the interval flusher.
func (s *ArchiveSink) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("archive sink already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.flushLoop()

	s.log.WithComponent("archive_sink").WithFields(logger.Fields{
		"bucket":         s.cfg.Bucket,
		"flush_interval": s.cfg.FlushInterval.String(),
		"max_records":    s.cfg.MaxRecords,
	}).Info("archive sink started")
	return nil
}

func (s *ArchiveSink) Write(ctx context.Context, msg models.Message, _ []byte) error {
	recs := recordsOf(msg)
	if len(recs) == 0 {
		return nil
	}
	route := msg.Route()

	s.mu.Lock()
	s.buffer[route] = append(s.buffer[route], recs...)
	var full []archiveRecord
	if len(s.buffer[route]) >= s.cfg.MaxRecords {
		full = s.buffer[route]
		delete(s.buffer, route)
	}
	s.mu.Unlock()

	if full != nil {
		if err := s.upload(ctx, route, full); err != nil {
			return &SinkError{Sink: s.Name(), Err: err}
		}
	}
	return nil
}

func (s *ArchiveSink) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flush(s.ctx)
		}
	}
}

func (s *ArchiveSink) flush(ctx context.Context) {
	s.mu.Lock()
	buffers := s.buffer
	s.buffer = make(map[models.Route][]archiveRecord)
	s.mu.Unlock()

	for route, recs := range buffers {
		if len(recs) == 0 {
			continue
		}
		if err := s.upload(ctx, route, recs); err != nil {
			s.log.WithComponent("archive_sink").WithError(err).WithFields(logger.Fields{"route": route.String()}).Error("upload to s3 failed")
		}
	}
}

// Close stops the flusher and uploads whatever is still buffered.
func (s *ArchiveSink) Close() error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.cancel()
		s.wg.Wait()
	}
	s.flush(context.Background())
	s.log.WithComponent("archive_sink").Info("archive sink stopped")
	return nil
}

func (s *ArchiveSink) upload(ctx context.Context, route models.Route, recs []archiveRecord) error {
	start := s.now()
	data, err := createParquet(recs)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	key := s.objectKey(route, start)
	_, err = s.client.PutObject(context.WithoutCancel(ctx), &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return err
	}
	if s.catalog != nil {
		t := start.UTC()
		err := s.catalog.Add(route, DataFile{
			Path:        "s3://" + s.cfg.Bucket + "/" + key,
			FileSize:    int64(len(data)),
			RecordCount: int64(len(recs)),
			Partition: map[string]string{
				"year":  fmt.Sprintf("%04d", t.Year()),
				"month": fmt.Sprintf("%02d", int(t.Month())),
				"day":   fmt.Sprintf("%02d", t.Day()),
				"hour":  fmt.Sprintf("%02d", t.Hour()),
			},
			Timestamp: start,
		})
		if err != nil {
			s.log.WithComponent("archive_sink").WithError(err).WithFields(logger.Fields{"s3_key": key}).Warn("catalog update failed")
		}
	}
	duration := time.Since(start)
	s.log.WithComponent("archive_sink").WithFields(logger.Fields{
		"s3_key":      key,
		"records":     len(recs),
		"bytes":       len(data),
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}).Info("archive batch uploaded")
	logger.RecordFlow("s3", len(data))
	return nil
}

func (s *ArchiveSink) objectKey(route models.Route, t time.Time) string {
	t = t.UTC()
	return path.Join(
		s.cfg.Prefix,
		"exchange="+route.Exchange,
		"market_type="+string(route.MarketType),
		"msg_type="+string(route.MsgType),
		fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", int(t.Month())),
		fmt.Sprintf("day=%02d", t.Day()),
		fmt.Sprintf("hour=%02d", t.Hour()),
		uuid.New().String()+".parquet",
	)
}

type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }

func createParquet(recs []archiveRecord) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(archiveRecord), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range recs {
		if err := pw.Write(r); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mw.buffer.Bytes(), nil
}
