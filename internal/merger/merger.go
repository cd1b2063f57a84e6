package merger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
	applogger "LOBFuse/pkg/logger"
)

// Config holds labeling and persistence parameters.
type Config struct {
	FutureOffset  time.Duration // label horizon, default 5s
	ThresholdPct  float64       // future-return threshold, default 0.001
	FlushInterval time.Duration // output batch cadence, default 2s
	BatchSize     int           // flush early past this many records, default 500
	MaxPending    int           // pending-buffer size bound, default 10000
	MaxPendingAge time.Duration // pending-buffer age bound, default 60s
}

func (c *Config) applyDefaults() {
	if c.FutureOffset <= 0 {
		c.FutureOffset = 5 * time.Second
	}
	if c.ThresholdPct <= 0 {
		c.ThresholdPct = 0.001
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 10000
	}
	if c.MaxPendingAge <= 0 {
		c.MaxPendingAge = time.Minute
	}
}

// Merger fuses asynchronously-arriving feature events into forward-labeled
// records. Feature events enter an ordered pending buffer; any price-bearing
// observation resolves every record whose target time has been reached.
//
// Per-record state machine: pending -> finalized, or pending -> discarded
// (only when no price was ever observed). Stop drains: remaining records are
// resolved with the last observed price instead of being dropped.
type Merger struct {
	cfg Config

	mu        sync.Mutex
	pending   []*models.PendingRecord // ordered by TargetTime
	batch     []*models.FinalizedRecord
	lastPrice float64
	stopped   bool

	store    domrepo.RecordStore
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	mergeCbs []func(*models.FinalizedRecord)

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(cfg Config, store domrepo.RecordStore, metrics domrepo.Metrics, l *applogger.Logger) *Merger {
	cfg.applyDefaults()
	return &Merger{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  l,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// OnMerge registers a callback fired for every finalized record, in
// registration order, before the record is batched for storage.
func (m *Merger) OnMerge(cb func(*models.FinalizedRecord)) {
	m.mergeCbs = append(m.mergeCbs, cb)
}

// AddFeatureEvent enqueues a feature event as a pending record with
// target = event time + future offset.
func (m *Merger) AddFeatureEvent(ev models.FeatureEvent) {
	if ev.Timestamp.IsZero() || ev.MidPrice <= 0 {
		if m.metrics != nil {
			m.metrics.RecordError("merger_bad_event")
		}
		return
	}
	rec := &models.PendingRecord{
		Features:   ev,
		CreatedAt:  ev.Timestamp,
		TargetTime: ev.Timestamp.Add(m.cfg.FutureOffset),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// Feed timestamps are monotonic per stream, so append order is target
	// order; walk back to the insertion point for the rare late event.
	i := len(m.pending)
	for i > 0 && m.pending[i-1].TargetTime.After(rec.TargetTime) {
		i--
	}
	m.pending = append(m.pending, nil)
	copy(m.pending[i+1:], m.pending[i:])
	m.pending[i] = rec

	evicted := m.evictOverLimitLocked(ev.Timestamp)
	price := m.lastPrice
	depth := len(m.pending)
	m.mu.Unlock()

	for _, old := range evicted {
		if price > 0 {
			m.finalize(old, price, ev.Timestamp)
			continue
		}
		if m.logger != nil {
			m.logger.Warn("pending record discarded without price observation")
		}
		if m.metrics != nil {
			m.metrics.RecordError("pending_discarded")
		}
	}
	if m.metrics != nil {
		m.metrics.RecordPendingDepth(depth)
	}
}

// ObservePrice treats any price-bearing event as "current market price at
// time ts" and resolves every pending record whose target time has passed.
func (m *Merger) ObservePrice(ts time.Time, price float64) {
	if price <= 0 {
		return
	}
	m.mu.Lock()
	m.lastPrice = price
	ready := m.takeReadyLocked(ts)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordLastPrice(price)
	}
	for _, rec := range ready {
		m.finalize(rec, price, ts)
	}
}

// takeReadyLocked pops records from the buffer head while their target time
// is at or before ts. O(records ready), not O(buffer size).
func (m *Merger) takeReadyLocked(ts time.Time) []*models.PendingRecord {
	n := 0
	for n < len(m.pending) && !m.pending[n].TargetTime.After(ts) {
		n++
	}
	if n == 0 {
		return nil
	}
	ready := make([]*models.PendingRecord, n)
	copy(ready, m.pending[:n])
	m.pending = append(m.pending[:0], m.pending[n:]...)
	return ready
}

// evictOverLimitLocked keeps the pending buffer from growing without bound
// on feed gaps: overaged or overflowing heads are popped and returned for
// resolution with the last observed price.
func (m *Merger) evictOverLimitLocked(now time.Time) []*models.PendingRecord {
	cutoff := now.Add(-m.cfg.MaxPendingAge)
	var evicted []*models.PendingRecord
	for len(m.pending) > 0 &&
		(len(m.pending) > m.cfg.MaxPending || m.pending[0].CreatedAt.Before(cutoff)) {
		evicted = append(evicted, m.pending[0])
		m.pending = m.pending[1:]
	}
	return evicted
}

// finalize labels one record and hands it to callbacks and the output batch.
func (m *Merger) finalize(rec *models.PendingRecord, price float64, at time.Time) {
	basis := rec.Features.MidPrice
	futureReturn := (price - basis) / basis

	label := models.LabelFlat
	if futureReturn > m.cfg.ThresholdPct {
		label = models.LabelUp
	} else if futureReturn < -m.cfg.ThresholdPct {
		label = models.LabelDown
	}

	fin := &models.FinalizedRecord{
		Features:     rec.Features,
		Label:        label,
		FutureReturn: futureReturn,
		LabelPrice:   price,
		LabeledAt:    at,
	}

	for _, cb := range m.mergeCbs {
		cb(fin)
	}

	m.mu.Lock()
	m.batch = append(m.batch, fin)
	full := len(m.batch) >= m.cfg.BatchSize
	m.mu.Unlock()

	if full {
		m.flush(context.Background())
	}
}

// flush writes the accumulated batch to the record store. A failed write is
// kept for the next attempt, bounded so a dead store cannot exhaust memory.
func (m *Merger) flush(ctx context.Context) {
	m.mu.Lock()
	if len(m.batch) == 0 {
		m.mu.Unlock()
		return
	}
	out := m.batch
	m.batch = nil
	m.mu.Unlock()

	start := time.Now()
	if err := m.store.StoreBatch(ctx, out); err != nil {
		if m.logger != nil {
			m.logger.Error("record flush failed",
				applogger.Int("records", len(out)), applogger.Error(err))
		}
		if m.metrics != nil {
			m.metrics.RecordError("record_flush")
		}
		m.mu.Lock()
		m.batch = append(out, m.batch...)
		if max := m.cfg.BatchSize * 10; len(m.batch) > max {
			dropped := len(m.batch) - max
			m.batch = m.batch[dropped:]
			if m.logger != nil {
				m.logger.Error("record backlog truncated", applogger.Int("dropped", dropped))
			}
		}
		m.mu.Unlock()
		return
	}
	if m.metrics != nil {
		m.metrics.RecordLatency("record_flush", time.Since(start).Seconds())
	}
}

// PendingDepth returns the current pending-buffer size.
func (m *Merger) PendingDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run drives the periodic flush loop until Stop or context cancellation.
func (m *Merger) Run(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()
	defer close(m.doneCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			m.flush(ctx)
		}
	}
}

// Stop drains the merger: every still-pending record is resolved with the
// last observed price (records with no price ever seen are discarded with a
// log line), the batch is flushed, and the flush loop is released.
func (m *Merger) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	remaining := m.pending
	m.pending = nil
	price := m.lastPrice
	started := m.started
	m.mu.Unlock()

	discarded := 0
	for _, rec := range remaining {
		if price > 0 {
			m.finalize(rec, price, rec.TargetTime)
		} else {
			discarded++
		}
	}
	if discarded > 0 {
		if m.logger != nil {
			m.logger.Warn("records discarded at shutdown, no price ever observed",
				applogger.Int("count", discarded))
		}
		if m.metrics != nil {
			m.metrics.RecordError("shutdown_discarded")
		}
	}

	m.flush(ctx)

	close(m.stopCh)
	if started {
		select {
		case <-m.doneCh:
		case <-ctx.Done():
			return fmt.Errorf("merger stop: %w", ctx.Err())
		}
	}
	return nil
}
