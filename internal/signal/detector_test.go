package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/domain/models"
)

func snap(imb float64) models.OrderBookSnapshot {
	return models.OrderBookSnapshot{Timestamp: time.Now(), MidPrice: 100, Imbalance: imb}
}

func TestDetectorThreshold(t *testing.T) {
	d := New(0.7, nil)
	var events []models.SignalEvent
	d.OnSignal(func(ev models.SignalEvent) { events = append(events, ev) })

	d.ProcessSnapshot(snap(0.5))
	d.ProcessSnapshot(snap(0.7)) // boundary is exclusive
	d.ProcessSnapshot(snap(-0.7))
	assert.Empty(t, events)

	d.ProcessSnapshot(snap(0.8))
	require.Len(t, events, 1)
	assert.Equal(t, models.SideBuy, events[0].Direction)

	d.ProcessSnapshot(snap(-0.9))
	require.Len(t, events, 2)
	assert.Equal(t, models.SideSell, events[1].Direction)
	assert.Equal(t, -0.9, events[1].Imbalance)
}
