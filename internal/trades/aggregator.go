package trades

import (
	"fmt"
	"time"

	"LOBFuse/internal/domain/models"
	applogger "LOBFuse/pkg/logger"
)

// Aggregator maintains a trailing window of trade prints and recomputes the
// window aggregate on every accepted trade. Raw-trade callbacks fire per
// print, aggregate callbacks fire per computation. An aggregate with zero
// total volume emits nothing.
//
// Owned by the trade ingestion goroutine; callbacks run synchronously on it.
type Aggregator struct {
	window   time.Duration
	lookback time.Duration

	trades  []models.TradePrint // in-window prints, arrival order
	history []volumePoint       // per-aggregate window sums, for the MA baseline

	rawCbs []func(models.TradePrint)
	aggCbs []func(models.TradeAggregate)
	logger *applogger.Logger
}

type volumePoint struct {
	ts   time.Time
	buy  float64
	sell float64
}

// Config holds the aggregation windows.
type Config struct {
	Window   time.Duration // trailing trade window, default 1s
	Lookback time.Duration // moving-average baseline, default 60s
}

func New(cfg Config, l *applogger.Logger) *Aggregator {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Minute
	}
	return &Aggregator{window: cfg.Window, lookback: cfg.Lookback, logger: l}
}

// OnRawTrade registers a callback fired for every accepted trade print.
func (a *Aggregator) OnRawTrade(cb func(models.TradePrint)) {
	a.rawCbs = append(a.rawCbs, cb)
}

// OnTradeAggregate registers a callback fired per aggregate computation.
func (a *Aggregator) OnTradeAggregate(cb func(models.TradeAggregate)) {
	a.aggCbs = append(a.aggCbs, cb)
}

// AddTrade accepts one trade print, fans it out raw, folds it into the
// window and emits the recomputed aggregate.
func (a *Aggregator) AddTrade(t models.TradePrint) error {
	if err := validateTrade(t); err != nil {
		if a.logger != nil {
			a.logger.Warn("trade rejected", applogger.Error(err))
		}
		return fmt.Errorf("add trade: %w", err)
	}

	for _, cb := range a.rawCbs {
		cb(t)
	}

	a.trades = append(a.trades, t)
	a.evict(t.Timestamp)

	agg, ok := a.compute(t.Timestamp)
	if !ok {
		return nil
	}
	a.history = append(a.history, volumePoint{ts: agg.Timestamp, buy: agg.BuyVolume, sell: agg.SellVolume})
	a.evictHistory(t.Timestamp)

	for _, cb := range a.aggCbs {
		cb(agg)
	}
	return nil
}

func validateTrade(t models.TradePrint) error {
	if t.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	if t.Price <= 0 || t.Qty <= 0 {
		return fmt.Errorf("bad price=%v qty=%v", t.Price, t.Qty)
	}
	if t.Side != models.SideBuy && t.Side != models.SideSell {
		return fmt.Errorf("unknown side %q", t.Side)
	}
	return nil
}

// evict drops trades older than the window, relative to now.
func (a *Aggregator) evict(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for ; i < len(a.trades); i++ {
		if a.trades[i].Timestamp.After(cutoff) {
			break
		}
	}
	if i > 0 {
		a.trades = append(a.trades[:0], a.trades[i:]...)
	}
}

func (a *Aggregator) evictHistory(now time.Time) {
	cutoff := now.Add(-a.lookback)
	i := 0
	for ; i < len(a.history); i++ {
		if a.history[i].ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		a.history = append(a.history[:0], a.history[i:]...)
	}
}

func (a *Aggregator) compute(now time.Time) (models.TradeAggregate, bool) {
	var buy, sell, notional, qty float64
	for _, t := range a.trades {
		if t.Side == models.SideBuy {
			buy += t.Qty
		} else {
			sell += t.Qty
		}
		notional += t.Price * t.Qty
		qty += t.Qty
	}
	if buy+sell == 0 {
		return models.TradeAggregate{}, false
	}

	buyMean, sellMean := a.movingAverages()
	avgPrice := 0.0
	if qty > 0 {
		avgPrice = notional / qty
	}
	return models.TradeAggregate{
		Timestamp:  now,
		BuyVolume:  buy,
		SellVolume: sell,
		BuyMean:    buyMean,
		SellMean:   sellMean,
		AvgPrice:   avgPrice,
		TradeCount: len(a.trades),
	}, true
}

// movingAverages averages past window sums over the look-back. The current
// window is excluded so a burst stands out against its own baseline.
func (a *Aggregator) movingAverages() (buyMean, sellMean float64) {
	if len(a.history) == 0 {
		return 0, 0
	}
	var buy, sell float64
	for _, p := range a.history {
		buy += p.buy
		sell += p.sell
	}
	n := float64(len(a.history))
	return buy / n, sell / n
}

// WindowSize returns the number of in-window trades. Test hook.
func (a *Aggregator) WindowSize() int { return len(a.trades) }
