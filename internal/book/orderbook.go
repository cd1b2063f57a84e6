package book

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"LOBFuse/internal/domain/models"
	applogger "LOBFuse/pkg/logger"
)

// ErrEmptySide is returned by MidPrice when either ladder is empty.
var ErrEmptySide = errors.New("order book side is empty")

// Book maintains the live bid/ask ladders for a single instrument and
// republishes a snapshot to registered observers after every applied update.
//
// Apply and the getters are owned by the ingestion goroutine; observers run
// synchronously on that goroutine, in registration order, and must not block.
type Book struct {
	topLevels   int
	nearBandPct float64

	bids map[float64]float64 // price -> qty
	asks map[float64]float64

	lastUpdate time.Time
	observers  []func(models.OrderBookSnapshot)
	logger     *applogger.Logger
}

// Config holds the book feature parameters.
type Config struct {
	TopLevels   int     // levels counted for the imbalance ratio
	NearBandPct float64 // band around mid for near-touch volume, e.g. 0.002
}

func New(cfg Config, l *applogger.Logger) *Book {
	if cfg.TopLevels <= 0 {
		cfg.TopLevels = 5
	}
	if cfg.NearBandPct <= 0 {
		cfg.NearBandPct = 0.002
	}
	return &Book{
		topLevels:   cfg.TopLevels,
		nearBandPct: cfg.NearBandPct,
		bids:        make(map[float64]float64),
		asks:        make(map[float64]float64),
		logger:      l,
	}
}

// OnUpdate registers an observer for post-update snapshots.
func (b *Book) OnUpdate(cb func(models.OrderBookSnapshot)) {
	b.observers = append(b.observers, cb)
}

// Apply validates and applies one depth update, then notifies observers.
// A rejected update leaves the ladders untouched.
func (b *Book) Apply(u *models.BookUpdate) error {
	if err := validateUpdate(u); err != nil {
		if b.logger != nil {
			b.logger.Warn("book update rejected", applogger.Error(err))
		}
		return fmt.Errorf("apply book update: %w", err)
	}

	for _, lv := range u.Bids {
		if lv.Qty == 0 {
			delete(b.bids, lv.Price)
		} else {
			b.bids[lv.Price] = lv.Qty
		}
	}
	for _, lv := range u.Asks {
		if lv.Qty == 0 {
			delete(b.asks, lv.Price)
		} else {
			b.asks[lv.Price] = lv.Qty
		}
	}
	b.lastUpdate = u.Timestamp

	snap, err := b.Snapshot()
	if err != nil {
		// one-sided book after the update; nothing to publish yet
		return nil
	}
	for _, cb := range b.observers {
		cb(snap)
	}
	return nil
}

func validateUpdate(u *models.BookUpdate) error {
	if u == nil {
		return fmt.Errorf("nil update")
	}
	if u.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	for _, lv := range u.Bids {
		if lv.Price <= 0 || lv.Qty < 0 {
			return fmt.Errorf("bad bid level price=%v qty=%v", lv.Price, lv.Qty)
		}
	}
	for _, lv := range u.Asks {
		if lv.Price <= 0 || lv.Qty < 0 {
			return fmt.Errorf("bad ask level price=%v qty=%v", lv.Price, lv.Qty)
		}
	}
	return nil
}

// MidPrice returns (best bid + best ask) / 2.
func (b *Book) MidPrice() (float64, error) {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, ErrEmptySide
	}
	return (b.bestBid() + b.bestAsk()) / 2, nil
}

// Imbalance returns the signed volume imbalance over the top levels together
// with the bid and ask volumes it was computed from.
func (b *Book) Imbalance() (ratio, bidVol, askVol float64) {
	bidVol = sumTop(b.bids, b.topLevels, true)
	askVol = sumTop(b.asks, b.topLevels, false)
	total := bidVol + askVol
	if total == 0 {
		return 0, 0, 0
	}
	return (bidVol - askVol) / total, bidVol, askVol
}

// NearPriceVolume returns cumulative bid/ask volume within bandPct of mid.
func (b *Book) NearPriceVolume(bandPct float64) (bidNear, askNear float64) {
	mid, err := b.MidPrice()
	if err != nil {
		return 0, 0
	}
	lo := mid * (1 - bandPct)
	hi := mid * (1 + bandPct)
	for p, q := range b.bids {
		if p >= lo {
			bidNear += q
		}
	}
	for p, q := range b.asks {
		if p <= hi {
			askNear += q
		}
	}
	return bidNear, askNear
}

// LastUpdate returns the timestamp of the last applied update.
func (b *Book) LastUpdate() time.Time { return b.lastUpdate }

// Snapshot builds the full feature vector for the current book state.
func (b *Book) Snapshot() (models.OrderBookSnapshot, error) {
	mid, err := b.MidPrice()
	if err != nil {
		return models.OrderBookSnapshot{}, err
	}
	ratio, bidVol, askVol := b.Imbalance()
	bidNear, askNear := b.NearPriceVolume(b.nearBandPct)
	return models.OrderBookSnapshot{
		Timestamp:     b.lastUpdate,
		MidPrice:      mid,
		Imbalance:     ratio,
		BidVolume:     bidVol,
		AskVolume:     askVol,
		BidVolumeNear: bidNear,
		AskVolumeNear: askNear,
	}, nil
}

func (b *Book) bestBid() float64 {
	best := 0.0
	for p := range b.bids {
		if p > best {
			best = p
		}
	}
	return best
}

func (b *Book) bestAsk() float64 {
	best := 0.0
	for p := range b.asks {
		if best == 0 || p < best {
			best = p
		}
	}
	return best
}

func sumTop(side map[float64]float64, n int, desc bool) float64 {
	if len(side) == 0 {
		return 0
	}
	prices := make([]float64, 0, len(side))
	for p := range side {
		prices = append(prices, p)
	}
	if desc {
		sort.Sort(sort.Reverse(sort.Float64Slice(prices)))
	} else {
		sort.Float64s(prices)
	}
	if n > len(prices) {
		n = len(prices)
	}
	var total float64
	for _, p := range prices[:n] {
		total += side[p]
	}
	return total
}
