package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cryptonorm/config"
	"cryptonorm/internal/channel"
	"cryptonorm/internal/contractvalue"
	"cryptonorm/internal/metrics"
	"cryptonorm/internal/status"
	"cryptonorm/internal/symbols"
	"cryptonorm/logger"
	"cryptonorm/models"
	"cryptonorm/parser"
	"cryptonorm/processor"
	"cryptonorm/reader"
	"cryptonorm/writer"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <exchange> <market_type> <msg_type>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until signalled)")
	replay := flag.String("replay", "", "Replay frames from this file instead of connecting (- for stdin)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 3 {
		usage()
		os.Exit(2)
	}
	route, err := models.ParseRoute(flag.Arg(0), flag.Arg(1), flag.Arg(2))
	if err != nil {
		log.WithError(err).Error("invalid route")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if *replay != "" {
		cfg.Source.ReplayFile = *replay
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Cryptonorm.Name,
		"version":     cfg.Cryptonorm.Version,
		"environment": config.AppEnvironment(),
		"route":       route.String(),
	}).Info("starting cryptonorm")
	log.WithEnv("APP_ENV", "DATA_DIR", "REDIS_URL").Debug("environment overrides")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if cfg.Logging.ReportInterval > 0 {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	deps := buildDeps(ctx, cfg, route)
	routes := processor.NewRoutes(deps)
	if err := routes.Validate(route); err != nil {
		log.WithError(err).WithFields(logger.Fields{"supported_exchanges": routes.Exchanges()}).Error("route is not supported")
		os.Exit(1)
	}

	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to create sinks")
		os.Exit(1)
	}

	channels := channel.NewChannels(route, cfg.Channels.RawBuffer)

	dispatcher, err := processor.NewDispatcher(routes, route, channels, sinks, processor.Config{
		Workers:        cfg.Processor.Workers,
		ReportInterval: cfg.Processor.ReportInterval,
	})
	if err != nil {
		log.WithError(err).Error("failed to create dispatcher")
		os.Exit(1)
	}

	sources, replayDone, err := buildSources(cfg, route, channels)
	if err != nil {
		log.WithError(err).Error("failed to create sources")
		os.Exit(1)
	}

	statusDone := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		srv := status.NewServer(status.Options{
			Addr:    cfg.Metrics.Addr,
			Route:   route,
			DataDir: cfg.Output.DataDir,
			Stats:   dispatcher.GetStats,
		}, log)
		go func() {
			defer close(statusDone)
			if err := srv.Run(ctx); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("status server failed")
			}
		}()
	} else {
		close(statusDone)
	}

	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start dispatcher")
		os.Exit(1)
	}

	sourceCtx, stopSources := context.WithCancel(ctx)
	defer stopSources()
	for _, src := range sources {
		if err := src.Start(sourceCtx); err != nil {
			log.WithError(err).Error("failed to start source")
			os.Exit(1)
		}
	}
	log.WithFields(logger.Fields{"sources": len(sources), "sinks": len(sinks)}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-timeout:
		log.WithFields(logger.Fields{"duration": duration.String()}).Info("run duration elapsed")
	case <-replayDone:
		log.Info("replay finished")
	}

	log.Info("starting graceful shutdown")
	done := make(chan struct{})
	go func() {
		defer close(done)
		stopSources()
		for _, src := range sources {
			src.Stop()
		}
		channels.Close()
		dispatcher.Stop()
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				log.WithError(err).WithFields(logger.Fields{"sink": s.Name()}).Warn("failed to close sink")
			}
		}
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}
	cancel()
	<-statusDone
	log.Info("cryptonorm stopped")
}

// buildDeps loads the pair and contract value tables once. Live lookups that
// fail leave the static tables in place.
func buildDeps(ctx context.Context, cfg *config.Config, route models.Route) parser.Deps {
	log := logger.GetLogger().WithComponent("main")

	tables := make(map[string]map[string]string)
	if cfg.Metadata.BinanceExchangeInfo && route.Exchange == "binance" {
		fctx, cancel := context.WithTimeout(ctx, cfg.Metadata.FetchTimeout)
		table, err := symbols.LoadBinanceTable(fctx, route.MarketType)
		cancel()
		if err != nil {
			log.WithError(err).Warn("binance exchange info unavailable, using segmentation rules")
		} else {
			tables["binance"] = table
		}
	}
	for exchange, overrides := range cfg.Metadata.PairOverrides {
		if tables[exchange] == nil {
			tables[exchange] = make(map[string]string, len(overrides))
		}
		for symbol, pair := range overrides {
			tables[exchange][symbol] = pair
		}
	}
	pairs := symbols.NewNormalizer(tables)

	var fetchers []contractvalue.Fetcher
	if cfg.Metadata.Live && route.MarketType.IsDerivative() {
		switch route.Exchange {
		case "bitget":
			fetchers = append(fetchers, &contractvalue.BitgetFetcher{
				URL:    cfg.Metadata.BitgetContractsURL,
				Client: &http.Client{Timeout: cfg.Metadata.FetchTimeout},
				Pairs:  pairs,
			})
		case "kucoin":
			fetchers = append(fetchers, contractvalue.NewKucoinFetcher(cfg.Metadata.KucoinFuturesEndpoint, pairs))
		case "okx":
			fetchers = append(fetchers, &contractvalue.OKXFetcher{
				URL:    cfg.Metadata.OKXInstrumentsURL,
				Client: &http.Client{Timeout: cfg.Metadata.FetchTimeout},
				Pairs:  pairs,
			})
		}
	}
	contracts := contractvalue.Build(ctx, contractvalue.Options{FetchTimeout: cfg.Metadata.FetchTimeout}, fetchers...)
	log.WithFields(logger.Fields{"contract_values": contracts.String()}).Info("lookup tables ready")

	return parser.Deps{Pairs: pairs, Contracts: contracts}
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]writer.Sink, error) {
	var sinks []writer.Sink
	fail := func(err error) ([]writer.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.Output.DataDir != "" {
		s, err := writer.NewFileSink(cfg.Output.DataDir)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Output.RedisURL != "" {
		s, err := writer.NewRedisSink(cfg.Output.RedisURL, cfg.Output.ChannelPrefix)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("neither output.data_dir nor output.redis_url is configured")
	}

	if cfg.Output.Kafka.Enabled {
		s, err := writer.NewKafkaSink(cfg.Output.Kafka.Brokers, cfg.Output.Kafka.TopicPrefix)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if s3 := cfg.Storage.S3; s3.Enabled {
		s, err := writer.NewArchiveSink(ctx, writer.ArchiveConfig{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			PathStyle:       s3.PathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			Prefix:          s3.Prefix,
			FlushInterval:   s3.FlushInterval,
			MaxRecords:      s3.MaxRecords,
			CatalogDir:      s3.CatalogDir,
		})
		if err != nil {
			return fail(err)
		}
		if err := s.Start(ctx); err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// buildSources returns one source per shard, or a single replay source. The
// returned channel is closed when a replay finishes and is nil otherwise.
func buildSources(cfg *config.Config, route models.Route, ch *channel.Channels) ([]reader.Source, <-chan struct{}, error) {
	if cfg.Source.ReplayFile != "" {
		src := reader.NewReplaySource(route, cfg.Source.ReplayFile, ch)
		return []reader.Source{src}, src.Done(), nil
	}

	shards, err := cfg.SourceShards()
	if err != nil {
		return nil, nil, err
	}

	url := cfg.Source.URL
	if url == "" {
		if url, err = reader.DefaultURL(route); err != nil {
			return nil, nil, err
		}
	}

	sources := make([]reader.Source, 0, len(shards))
	for _, shard := range shards {
		subs := cfg.Source.Subscriptions
		if route.Exchange == "bybit" {
			if len(subs) == 0 {
				subs = reader.BybitTopics(route, shard.Symbols)
			}
			sources = append(sources, reader.NewBybitSource(route, url, subs, ch))
			continue
		}
		if len(subs) == 0 {
			if subs, err = reader.SubscribeFrames(route, shard.Symbols); err != nil {
				return nil, nil, err
			}
		}
		sources = append(sources, reader.NewWebsocketSource(route, reader.WebsocketConfig{
			URL:            url,
			Subscriptions:  subs,
			LocalIP:        shard.IP,
			ReconnectDelay: cfg.Source.ReconnectDelay,
			PingInterval:   cfg.Source.PingInterval,
		}, ch))
	}
	return sources, nil, nil
}
