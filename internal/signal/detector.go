package signal

import (
	"LOBFuse/internal/domain/models"
	applogger "LOBFuse/pkg/logger"
)

// Detector is the rule-based directional signal: a pure threshold check over
// each order-book snapshot. Stateless, no buffering.
type Detector struct {
	threshold float64
	callbacks []func(models.SignalEvent)
	logger    *applogger.Logger
}

func New(imbalanceThreshold float64, l *applogger.Logger) *Detector {
	if imbalanceThreshold <= 0 {
		imbalanceThreshold = 0.7
	}
	return &Detector{threshold: imbalanceThreshold, logger: l}
}

// OnSignal registers a callback for emitted signals.
func (d *Detector) OnSignal(cb func(models.SignalEvent)) {
	d.callbacks = append(d.callbacks, cb)
}

// ProcessSnapshot emits a directional signal when |imbalance| crosses the
// threshold. Registered as an order-book observer.
func (d *Detector) ProcessSnapshot(snap models.OrderBookSnapshot) {
	imb := snap.Imbalance
	if imb <= d.threshold && imb >= -d.threshold {
		return
	}
	dir := models.SideSell
	if imb > 0 {
		dir = models.SideBuy
	}
	ev := models.SignalEvent{
		Timestamp: snap.Timestamp,
		Direction: dir,
		Imbalance: imb,
		MidPrice:  snap.MidPrice,
	}
	for _, cb := range d.callbacks {
		cb(ev)
	}
}
