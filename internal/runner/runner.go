package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"LOBFuse/internal/analyzer"
	"LOBFuse/internal/book"
	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
	"LOBFuse/internal/inference"
	"LOBFuse/internal/merger"
	"LOBFuse/internal/service/cache"
	"LOBFuse/internal/signal"
	"LOBFuse/internal/trades"
	applogger "LOBFuse/pkg/logger"
)

// Cache keys published for the status API.
const (
	KeyLatestSnapshot   = "latest_snapshot"
	KeyLatestAggregate  = "latest_aggregate"
	KeyLatestSpike      = "latest_spike"
	KeyLatestSignal     = "latest_signal"
	KeyLatestRecord     = "latest_record"
	KeyLatestPrediction = "latest_prediction"
)

// Config holds orchestration parameters.
type Config struct {
	ActivityTTL time.Duration // how long a spike flags subsequent features, default 1s
	RedisTTL    time.Duration // latest-state TTL in redis, default 30s
}

// Runner wires the feed into the pipeline: book updates feed the order-book
// tracker, trade prints feed the aggregator, and their derived events meet in
// the merger. All feed-driven callbacks run on the single consume goroutine.
type Runner struct {
	cfg Config

	stream   domrepo.MarketStream
	book     *book.Book
	agg      *trades.Aggregator
	analyzer *analyzer.Analyzer
	detector *signal.Detector
	merger   *merger.Merger

	model     *inference.ModelRunner  // nil when inference is disabled
	publisher domrepo.RecordPublisher // nil when kafka is disabled
	redis     cache.BytesCache        // nil when redis is disabled
	status    *cache.TTLCache
	metrics   domrepo.Metrics
	logger    *applogger.Logger

	mu         sync.Mutex
	latestAgg  *models.TradeAggregate
	spikeUntil time.Time

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
	mergerErr chan error
	mergerOn  bool // Run spawned the merger loop, so mergerErr will receive
}

// Deps bundles the pipeline components the runner orchestrates.
type Deps struct {
	Stream    domrepo.MarketStream
	Book      *book.Book
	Agg       *trades.Aggregator
	Analyzer  *analyzer.Analyzer
	Detector  *signal.Detector
	Merger    *merger.Merger
	Model     *inference.ModelRunner
	Publisher domrepo.RecordPublisher
	Redis     cache.BytesCache
	Status    *cache.TTLCache
	Metrics   domrepo.Metrics
	Logger    *applogger.Logger
}

func New(cfg Config, d Deps) *Runner {
	if cfg.ActivityTTL <= 0 {
		cfg.ActivityTTL = time.Second
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = 30 * time.Second
	}
	r := &Runner{
		cfg:       cfg,
		stream:    d.Stream,
		book:      d.Book,
		agg:       d.Agg,
		analyzer:  d.Analyzer,
		detector:  d.Detector,
		merger:    d.Merger,
		model:     d.Model,
		publisher: d.Publisher,
		redis:     d.Redis,
		status:    d.Status,
		metrics:   d.Metrics,
		logger:    d.Logger,
		stopCh:    make(chan struct{}),
		mergerErr: make(chan error, 1),
	}
	r.setupCallbacks()
	return r
}

// setupCallbacks connects the component event chains.
func (r *Runner) setupCallbacks() {
	r.book.OnUpdate(func(snap models.OrderBookSnapshot) {
		r.detector.ProcessSnapshot(snap)
		r.merger.AddFeatureEvent(r.buildFeatureEvent(snap))
		r.cacheStatus(KeyLatestSnapshot, snap)
	})

	r.agg.OnRawTrade(func(t models.TradePrint) {
		r.merger.ObservePrice(t.Timestamp, t.Price)
	})

	r.agg.OnTradeAggregate(func(agg models.TradeAggregate) {
		r.mu.Lock()
		copied := agg
		r.latestAgg = &copied
		r.mu.Unlock()
		r.analyzer.ProcessAggregate(agg)
		r.cacheStatus(KeyLatestAggregate, agg)
	})

	r.analyzer.OnActivity(func(ev models.ActivitySpikeEvent) {
		r.mu.Lock()
		r.spikeUntil = ev.Timestamp.Add(r.cfg.ActivityTTL)
		r.mu.Unlock()
		r.cacheStatus(KeyLatestSpike, ev)
	})

	r.detector.OnSignal(func(ev models.SignalEvent) {
		if r.logger != nil {
			r.logger.Info("imbalance signal",
				applogger.String("direction", string(ev.Direction)),
				applogger.Float64("imbalance", ev.Imbalance),
			)
		}
		r.cacheStatus(KeyLatestSignal, ev)
	})

	r.merger.OnMerge(r.handleMerged)
}

// buildFeatureEvent fuses one book snapshot with the latest cached trade
// aggregate and the recent-spike flag. The flag compares event timestamps,
// not wall clock, so replayed streams label identically.
func (r *Runner) buildFeatureEvent(snap models.OrderBookSnapshot) models.FeatureEvent {
	r.mu.Lock()
	agg := r.latestAgg
	spike := snap.Timestamp.Before(r.spikeUntil)
	r.mu.Unlock()

	return models.FeatureEvent{
		Timestamp:     snap.Timestamp,
		MidPrice:      snap.MidPrice,
		Imbalance:     snap.Imbalance,
		BidVolume:     snap.BidVolume,
		AskVolume:     snap.AskVolume,
		BidVolumeNear: snap.BidVolumeNear,
		AskVolumeNear: snap.AskVolumeNear,
		ActivitySpike: spike,
		Agg:           agg,
	}
}

// handleMerged fans a finalized record out to inference, kafka and the
// latest-state caches. Downstream failures are logged, never propagated back
// into the merge path.
func (r *Runner) handleMerged(rec *models.FinalizedRecord) {
	r.cacheStatus(KeyLatestRecord, rec)

	if r.model != nil {
		pred, err := r.model.Predict(rec)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("prediction failed", applogger.Error(err))
			}
			if r.metrics != nil {
				r.metrics.RecordError("predict")
			}
		} else {
			r.cacheStatus(KeyLatestPrediction, pred)
			if r.logger != nil {
				r.logger.Debug("prediction",
					applogger.String("direction", pred.Direction),
					applogger.Float64("confidence", pred.Confidence),
				)
			}
			if r.redis != nil {
				if b, err := json.Marshal(pred); err == nil {
					_ = r.redis.SetBytes(KeyLatestPrediction, b, r.cfg.RedisTTL)
				}
			}
		}
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(context.Background(), rec); err != nil {
			if r.logger != nil {
				r.logger.Error("record publish failed", applogger.Error(err))
			}
			if r.metrics != nil {
				r.metrics.RecordError("kafka_publish")
			}
		}
	}

	if r.redis != nil {
		if b, err := json.Marshal(rec); err == nil {
			if err := r.redis.SetBytes(KeyLatestRecord, b, r.cfg.RedisTTL); err != nil {
				if r.metrics != nil {
					r.metrics.RecordError("redis_set")
				}
			}
		}
	}
}

func (r *Runner) cacheStatus(key string, v any) {
	if r.status != nil {
		r.status.Set(key, v, 0)
	}
}

// Run connects the feed and consumes it until Stop or context cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.stream.Connect(ctx); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	if err := r.stream.Subscribe(ctx); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	r.mu.Lock()
	r.mergerOn = true
	r.mu.Unlock()
	go func() {
		r.mergerErr <- r.merger.Run(ctx)
	}()

	r.wg.Add(1)
	go r.consume(ctx)
	return nil
}

// consume is the single ingestion goroutine: it owns the book and the
// aggregator, and reconnects the stream on read failure.
func (r *Runner) consume(ctx context.Context) {
	defer r.wg.Done()
	for {
		books, prints, errs := r.stream.Read(ctx)
		r.drain(ctx, books, prints, errs)

		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if r.logger != nil {
			r.logger.Warn("stream lost, reconnecting")
		}
		if r.metrics != nil {
			r.metrics.RecordError("stream_disconnect")
		}
		if err := r.stream.Reconnect(ctx); err != nil {
			if r.logger != nil {
				r.logger.Error("reconnect failed", applogger.Error(err))
			}
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// drain pumps the three stream channels until all are closed or shutdown.
func (r *Runner) drain(ctx context.Context, books <-chan *models.BookUpdate, prints <-chan *models.TradePrint, errs <-chan error) {
	for books != nil || prints != nil || errs != nil {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case u, ok := <-books:
			if !ok {
				books = nil
				continue
			}
			if r.metrics != nil {
				r.metrics.RecordEvent("book")
			}
			_ = r.book.Apply(u) // rejection already logged by the book
		case t, ok := <-prints:
			if !ok {
				prints = nil
				continue
			}
			if r.metrics != nil {
				r.metrics.RecordEvent("trade")
			}
			_ = r.agg.AddTrade(*t)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && r.logger != nil {
				r.logger.Error("stream error", applogger.Error(err))
			}
		}
	}
}

// Stop shuts the pipeline down in two phases: first the feed side stops so no
// new features enter, then the merger drains its pending buffer. Within each
// phase the caller's context bounds the wait.
func (r *Runner) Stop(ctx context.Context) error {
	var stopErr error
	r.stopOnce.Do(func() {
		// phase 1: stop ingestion
		close(r.stopCh)
		_ = r.stream.Close()
		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("runner stop: %w", ctx.Err())
			return
		}

		// phase 2: drain and release the merger
		if err := r.merger.Stop(ctx); err != nil {
			stopErr = err
		}

		// surface the flush-loop result; nil on a clean stop
		r.mu.Lock()
		mergerOn := r.mergerOn
		r.mu.Unlock()
		if mergerOn {
			select {
			case err := <-r.mergerErr:
				if err != nil && stopErr == nil {
					stopErr = fmt.Errorf("merger run: %w", err)
				}
			case <-ctx.Done():
				if stopErr == nil {
					stopErr = fmt.Errorf("runner stop: %w", ctx.Err())
				}
			}
		}
	})
	return stopErr
}
