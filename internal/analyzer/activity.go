package analyzer

import (
	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
	applogger "LOBFuse/pkg/logger"
)

// ratioSentinel stands in for the buy/sell ratio when there is buy volume
// but no sell volume at all.
const ratioSentinel = 1_000_000.0

// Config holds the detection thresholds.
type Config struct {
	VolumeThreshold float64 // default 10.0
	ImbalanceHigh   float64 // default 2.0
	ImbalanceLow    float64 // default 0.5
	SpikeMultiplier float64 // default 1.2
}

// DefaultConfig returns the documented threshold defaults.
func DefaultConfig() Config {
	return Config{
		VolumeThreshold: 10.0,
		ImbalanceHigh:   2.0,
		ImbalanceLow:    0.5,
		SpikeMultiplier: 1.2,
	}
}

// Analyzer is a stateless detector over trade aggregates. Every emitted
// event is appended to the audit log before any callback runs.
type Analyzer struct {
	cfg       Config
	audit     domrepo.AuditLog
	metrics   domrepo.Metrics
	callbacks []func(models.ActivitySpikeEvent)
	logger    *applogger.Logger
}

func New(cfg Config, audit domrepo.AuditLog, metrics domrepo.Metrics, l *applogger.Logger) *Analyzer {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Analyzer{cfg: cfg, audit: audit, metrics: metrics, logger: l}
}

// OnActivity registers a callback for detected spikes.
func (a *Analyzer) OnActivity(cb func(models.ActivitySpikeEvent)) {
	a.callbacks = append(a.callbacks, cb)
}

// ProcessAggregate inspects one trade aggregate and emits at most one
// ActivitySpikeEvent. Reason priority: spike, then imbalance, then
// volume_exceeded.
func (a *Analyzer) ProcessAggregate(agg models.TradeAggregate) {
	totalVolume := agg.BuyVolume + agg.SellVolume
	if totalVolume == 0 {
		return
	}

	maVolume := agg.BuyMean + agg.SellMean
	spike := maVolume > 0 && totalVolume/maVolume > a.cfg.SpikeMultiplier

	ratio := 1.0
	switch {
	case agg.SellVolume > 0:
		ratio = agg.BuyVolume / agg.SellVolume
	case agg.BuyVolume > 0:
		ratio = ratioSentinel
	}
	imbalance := ratio > a.cfg.ImbalanceHigh || ratio < a.cfg.ImbalanceLow
	volumeExceeded := totalVolume > a.cfg.VolumeThreshold

	if !spike && !imbalance && !volumeExceeded {
		return
	}

	reason := models.ReasonVolumeExceeded
	if spike {
		reason = models.ReasonSpike
	} else if imbalance {
		reason = models.ReasonImbalance
	}

	direction := models.SideSell
	if ratio > 1 {
		direction = models.SideBuy
	}

	ev := models.ActivitySpikeEvent{
		Timestamp:    agg.Timestamp,
		Type:         "trade_activity_spike",
		BuyVolume:    agg.BuyVolume,
		SellVolume:   agg.SellVolume,
		BuySellRatio: ratio,
		AvgPrice:     agg.AvgPrice,
		TradeCount:   agg.TradeCount,
		MAVolume:     maVolume,
		Direction:    direction,
		Reason:       reason,
	}

	// Audit trail first: a failing callback must not lose the record.
	// An audit write failure is logged and never stops ingestion.
	if a.audit != nil {
		if err := a.audit.Append(&ev); err != nil {
			if a.logger != nil {
				a.logger.Error("audit append failed", applogger.Error(err))
			}
			if a.metrics != nil {
				a.metrics.RecordError("audit_append")
			}
		}
	}

	for _, cb := range a.callbacks {
		cb(ev)
	}

	if a.logger != nil {
		a.logger.Warn("activity spike",
			applogger.String("reason", string(ev.Reason)),
			applogger.String("direction", string(ev.Direction)),
			applogger.Float64("total_volume", totalVolume),
		)
	}
}
