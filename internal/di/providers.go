package di

import (
	"context"
	"fmt"
	"time"

	"LOBFuse/internal/analyzer"
	"LOBFuse/internal/book"
	domrepo "LOBFuse/internal/domain/repository"
	"LOBFuse/internal/handler/api"
	"LOBFuse/internal/inference"
	"LOBFuse/internal/merger"
	internalrepo "LOBFuse/internal/repository"
	"LOBFuse/internal/runner"
	"LOBFuse/internal/service/binance"
	"LOBFuse/internal/service/cache"
	"LOBFuse/internal/signal"
	"LOBFuse/internal/trades"
	pkgch "LOBFuse/pkg/clickhouse"
	"LOBFuse/pkg/config"
	xhttp "LOBFuse/pkg/http"
	pkgkafka "LOBFuse/pkg/kafka"
	applogger "LOBFuse/pkg/logger"
	"LOBFuse/pkg/metrics"
	"LOBFuse/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRecordStore creates the finalized-record storage and its schema.
func ProvideRecordStore(chClient *pkgch.Client, cfg *config.Config) (domrepo.RecordStore, error) {
	store := internalrepo.NewCHRecordStore(chClient, cfg.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("record store schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideRecordPublisher creates the Kafka record publisher, or nil when
// kafka is disabled.
func ProvideRecordPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.RecordPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaRecordPublisher(producer, cfg.Kafka.Topic, cfg.RunID)
}

// ProvideAuditLog opens the append-only spike audit trail.
func ProvideAuditLog(cfg *config.Config) (domrepo.AuditLog, error) {
	return internalrepo.NewJSONLAuditLog(cfg.Activity.AuditPath)
}

// ProvideMarketStream creates the Binance WebSocket stream.
func ProvideMarketStream(cfg *config.Config) domrepo.MarketStream {
	return binance.New(
		cfg.Feed.URL,
		cfg.Feed.Symbol,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
	)
}

// ProvideBook creates the order-book state tracker.
func ProvideBook(cfg *config.Config, l *applogger.Logger) *book.Book {
	return book.New(book.Config{
		TopLevels:   cfg.Pipeline.TopLevels,
		NearBandPct: cfg.Pipeline.NearBandPct,
	}, l)
}

// ProvideAggregator creates the trade window aggregator.
func ProvideAggregator(cfg *config.Config, l *applogger.Logger) *trades.Aggregator {
	return trades.New(trades.Config{
		Window:   cfg.Pipeline.Window,
		Lookback: cfg.Pipeline.Lookback,
	}, l)
}

// ProvideAnalyzer creates the trade activity analyzer.
func ProvideAnalyzer(cfg *config.Config, audit domrepo.AuditLog, m domrepo.Metrics, l *applogger.Logger) *analyzer.Analyzer {
	return analyzer.New(analyzer.Config{
		VolumeThreshold: cfg.Activity.VolumeThreshold,
		ImbalanceHigh:   cfg.Activity.ImbalanceHigh,
		ImbalanceLow:    cfg.Activity.ImbalanceLow,
		SpikeMultiplier: cfg.Activity.SpikeMultiplier,
	}, audit, m, l)
}

// ProvideDetector creates the imbalance signal detector.
func ProvideDetector(cfg *config.Config, l *applogger.Logger) *signal.Detector {
	return signal.New(cfg.Signal.ImbalanceThreshold, l)
}

// ProvideMerger creates the stream merger and labeler.
func ProvideMerger(cfg *config.Config, store domrepo.RecordStore, m domrepo.Metrics, l *applogger.Logger) *merger.Merger {
	return merger.New(merger.Config{
		FutureOffset:  cfg.Pipeline.FutureOffset,
		ThresholdPct:  cfg.Pipeline.LabelThresholdPct,
		FlushInterval: cfg.Pipeline.FlushInterval,
		BatchSize:     cfg.Pipeline.BatchSize,
		MaxPending:    cfg.Pipeline.MaxPending,
		MaxPendingAge: cfg.Pipeline.MaxPendingAge,
	}, store, m, l)
}

// ProvideModelRunner loads the inference artifact, or returns nil when no
// model path is configured. A broken artifact disables inference rather than
// the pipeline: the load error is logged and the runner starts without a
// model.
func ProvideModelRunner(cfg *config.Config, l *applogger.Logger) *inference.ModelRunner {
	if cfg.Model.Path == "" {
		return nil
	}
	model, err := inference.NewModelRunner(cfg.Model.Path, l)
	if err != nil {
		l.Error("model load failed, continuing without inference",
			applogger.String("path", cfg.Model.Path),
			applogger.Error(err),
		)
		return nil
	}
	return model
}

// ProvideStatusCache creates the in-process latest-state cache.
func ProvideStatusCache() *cache.TTLCache {
	return cache.NewTTLCache()
}

// ProvideRedisCache creates the Redis latest-state cache, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) cache.BytesCache {
	if !cfg.Redis.Enabled {
		return nil
	}
	return cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideRunner wires the pipeline components into the orchestrator.
func ProvideRunner(
	cfg *config.Config,
	stream domrepo.MarketStream,
	bk *book.Book,
	agg *trades.Aggregator,
	an *analyzer.Analyzer,
	det *signal.Detector,
	mg *merger.Merger,
	model *inference.ModelRunner,
	pub domrepo.RecordPublisher,
	redis cache.BytesCache,
	status *cache.TTLCache,
	m domrepo.Metrics,
	l *applogger.Logger,
) *runner.Runner {
	return runner.New(runner.Config{
		ActivityTTL: cfg.Pipeline.ActivityTTL,
		RedisTTL:    cfg.Redis.TTL,
	}, runner.Deps{
		Stream:    stream,
		Book:      bk,
		Agg:       agg,
		Analyzer:  an,
		Detector:  det,
		Merger:    mg,
		Model:     model,
		Publisher: pub,
		Redis:     redis,
		Status:    status,
		Metrics:   m,
		Logger:    l,
	})
}

// ProvideStatusHandler creates the HTTP API handler.
func ProvideStatusHandler(
	cfg *config.Config,
	stream domrepo.MarketStream,
	store domrepo.RecordStore,
	status *cache.TTLCache,
	mg *merger.Merger,
	l *applogger.Logger,
) xhttp.Handler {
	h := api.NewStatusHandler(cfg.RunID, stream, store, status, mg.PendingDepth)
	h.SetLogger(l)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	run *runner.Runner,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	pub domrepo.RecordPublisher,
	audit domrepo.AuditLog,
) *server.App {
	return server.New(cfg, l, run, handler, chClient, pub, audit)
}
