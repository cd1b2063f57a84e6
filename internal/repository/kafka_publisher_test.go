package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/domain/models"
)

func TestPublisherKeyIsStablePerRun(t *testing.T) {
	p := &KafkaRecordPublisher{topic: "lobfuse.merged", runID: "lobfuse_1700000000"}

	// every record of a run must hash to the same partition
	assert.Equal(t, []byte("lobfuse_1700000000"), p.key())
}

func TestPublisherPayloadFlattensRecord(t *testing.T) {
	ts := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	rec := &models.FinalizedRecord{
		Features: models.FeatureEvent{
			Timestamp:     ts,
			MidPrice:      100.05,
			Imbalance:     0.8,
			ActivitySpike: true,
			Agg:           &models.TradeAggregate{BuyVolume: 50, TradeCount: 3},
		},
		Label:        models.LabelUp,
		FutureReturn: 0.0095,
		LabelPrice:   101,
		LabeledAt:    ts.Add(5 * time.Second),
	}

	p := &KafkaRecordPublisher{topic: "lobfuse.merged", runID: "run1"}
	pl := p.payload(rec)

	assert.Equal(t, "run1", pl.RunID)
	assert.Equal(t, ts, pl.Timestamp)
	assert.Equal(t, 100.05, pl.MidPrice)
	assert.True(t, pl.ActivitySpike)
	require.NotNil(t, pl.Agg)
	assert.Equal(t, 50.0, pl.Agg.BuyVolume)
	assert.Equal(t, models.LabelUp, pl.Label)
	assert.Equal(t, 101.0, pl.LabelPrice)
}
