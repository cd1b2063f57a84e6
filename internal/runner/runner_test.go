package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/analyzer"
	"LOBFuse/internal/book"
	"LOBFuse/internal/domain/models"
	"LOBFuse/internal/merger"
	"LOBFuse/internal/service/cache"
	"LOBFuse/internal/signal"
	"LOBFuse/internal/trades"
)

type fakeStream struct {
	mu        sync.Mutex
	books     chan *models.BookUpdate
	prints    chan *models.TradePrint
	errs      chan error
	connected bool
	closed    bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		books:  make(chan *models.BookUpdate, 64),
		prints: make(chan *models.TradePrint, 64),
		errs:   make(chan error, 1),
	}
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

func (s *fakeStream) Read(context.Context) (<-chan *models.BookUpdate, <-chan *models.TradePrint, <-chan error) {
	return s.books, s.prints, s.errs
}

func (s *fakeStream) Reconnect(ctx context.Context) error { return s.Connect(ctx) }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.connected = false
		close(s.books)
		close(s.prints)
		close(s.errs)
	}
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type fakeStore struct {
	mu      sync.Mutex
	records []*models.FinalizedRecord
}

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) StoreBatch(_ context.Context, recs []*models.FinalizedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recs...)
	return nil
}

func (s *fakeStore) Query(context.Context, time.Time, time.Time, int) ([]*models.FinalizedRecord, error) {
	return nil, nil
}
func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestRunner(stream *fakeStream, store *fakeStore, futureOffset time.Duration) *Runner {
	return New(Config{ActivityTTL: time.Second}, Deps{
		Stream:   stream,
		Book:     book.New(book.Config{}, nil),
		Agg:      trades.New(trades.Config{}, nil),
		Analyzer: analyzer.New(analyzer.DefaultConfig(), nil, nil, nil),
		Detector: signal.New(0.7, nil),
		Merger:   merger.New(merger.Config{FutureOffset: futureOffset}, store, nil, nil),
		Status:   cache.NewTTLCache(),
	})
}

func bookUpdate(ts time.Time, bid, ask float64) *models.BookUpdate {
	return &models.BookUpdate{
		Timestamp: ts,
		Bids:      []models.PriceLevel{{Price: bid, Qty: 9}},
		Asks:      []models.PriceLevel{{Price: ask, Qty: 1}},
	}
}

func trade(ts time.Time, price, qty float64, side models.Side) models.TradePrint {
	return models.TradePrint{Timestamp: ts, Price: price, Qty: qty, Side: side}
}

func TestFeatureFusion(t *testing.T) {
	store := &fakeStore{}
	r := newTestRunner(newFakeStream(), store, time.Second)

	var merged []*models.FinalizedRecord
	r.merger.OnMerge(func(rec *models.FinalizedRecord) { merged = append(merged, rec) })

	base := time.Now()

	// a heavy buy print exceeds the volume threshold and raises a spike
	require.NoError(t, r.agg.AddTrade(trade(base, 100, 50, models.SideBuy)))

	// a book update within the spike TTL carries both the aggregate and the flag
	require.NoError(t, r.book.Apply(bookUpdate(base.Add(500*time.Millisecond), 99.9, 100.1)))
	// one outside the TTL carries the aggregate but not the flag
	require.NoError(t, r.book.Apply(bookUpdate(base.Add(3*time.Second), 99.9, 100.1)))

	// a later trade resolves both pending records
	require.NoError(t, r.agg.AddTrade(trade(base.Add(10*time.Second), 101, 1, models.SideSell)))

	require.Len(t, merged, 2)
	first, second := merged[0], merged[1]

	assert.True(t, first.Features.ActivitySpike, "snapshot inside the spike window")
	require.NotNil(t, first.Features.Agg)
	assert.Equal(t, 50.0, first.Features.Agg.BuyVolume)
	assert.Equal(t, models.LabelUp, first.Label, "price moved 100 -> 101")

	assert.False(t, second.Features.ActivitySpike, "snapshot after the spike TTL")
}

func TestSpikeFlagUsesEventTime(t *testing.T) {
	r := newTestRunner(newFakeStream(), &fakeStore{}, time.Second)

	// event timestamps far in the past still flag correctly relative to
	// each other, independent of wall clock
	base := time.Now().Add(-time.Hour)
	require.NoError(t, r.agg.AddTrade(trade(base, 100, 50, models.SideBuy)))

	ev := r.buildFeatureEvent(models.OrderBookSnapshot{Timestamp: base.Add(900 * time.Millisecond), MidPrice: 100})
	assert.True(t, ev.ActivitySpike)

	ev = r.buildFeatureEvent(models.OrderBookSnapshot{Timestamp: base.Add(1100 * time.Millisecond), MidPrice: 100})
	assert.False(t, ev.ActivitySpike)
}

func TestStatusCachePublishing(t *testing.T) {
	r := newTestRunner(newFakeStream(), &fakeStore{}, time.Second)

	base := time.Now()
	require.NoError(t, r.agg.AddTrade(trade(base, 100, 50, models.SideBuy)))
	require.NoError(t, r.book.Apply(bookUpdate(base, 99.9, 100.1)))

	_, ok := r.status.Get(KeyLatestAggregate)
	assert.True(t, ok)
	_, ok = r.status.Get(KeyLatestSnapshot)
	assert.True(t, ok)
	_, ok = r.status.Get(KeyLatestSpike)
	assert.True(t, ok, "heavy volume raised a spike")
	_, ok = r.status.Get(KeyLatestSignal)
	assert.True(t, ok, "9:1 top-level imbalance crosses the signal threshold")
}

func TestRunStopTwoPhase(t *testing.T) {
	stream := newFakeStream()
	store := &fakeStore{}
	r := newTestRunner(stream, store, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.True(t, stream.IsConnected())

	base := time.Now()
	stream.prints <- &models.TradePrint{Timestamp: base, Price: 100, Qty: 1, Side: models.SideBuy}
	stream.books <- bookUpdate(base.Add(100*time.Millisecond), 99.9, 100.1)

	// the book feature is pending, its 5s horizon unreached
	require.Eventually(t, func() bool { return r.merger.PendingDepth() == 1 },
		time.Second, 5*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, r.Stop(stopCtx))

	assert.False(t, stream.IsConnected(), "feed closed first")
	assert.Zero(t, r.merger.PendingDepth(), "merger drained")
	assert.Equal(t, 1, store.count(), "drained record flushed with the last trade price")
}

func TestStopSurfacesMergerRunError(t *testing.T) {
	stream := newFakeStream()
	r := newTestRunner(stream, &fakeStore{}, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Run(ctx))

	// kill the run context out from under the flush loop
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	err := r.Stop(stopCtx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
