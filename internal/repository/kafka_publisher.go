package repository

import (
	"context"
	"time"

	"LOBFuse/internal/domain/models"
	domrepo "LOBFuse/internal/domain/repository"
	pkgkafka "LOBFuse/pkg/kafka"
)

// KafkaRecordPublisher implements RecordPublisher for Kafka.
type KafkaRecordPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	runID    string
}

// NewKafkaRecordPublisher creates a Kafka-backed record publisher.
func NewKafkaRecordPublisher(producer *pkgkafka.Producer, topic, runID string) domrepo.RecordPublisher {
	return &KafkaRecordPublisher{producer: producer, topic: topic, runID: runID}
}

// recordPayload is the wire shape of one finalized record.
type recordPayload struct {
	RunID         string                 `json:"run_id"`
	Timestamp     time.Time              `json:"ts"`
	MidPrice      float64                `json:"mid_price"`
	Imbalance     float64                `json:"imbalance"`
	BidVolume     float64                `json:"bid_volume"`
	AskVolume     float64                `json:"ask_volume"`
	BidVolumeNear float64                `json:"bid_volume_near"`
	AskVolumeNear float64                `json:"ask_volume_near"`
	ActivitySpike bool                   `json:"activity_spike"`
	Agg           *models.TradeAggregate `json:"agg,omitempty"`
	Label         models.Label           `json:"label"`
	FutureReturn  float64                `json:"future_return"`
	LabelPrice    float64                `json:"label_price"`
	LabeledAt     time.Time              `json:"labeled_at"`
}

func (p *KafkaRecordPublisher) payload(rec *models.FinalizedRecord) recordPayload {
	f := rec.Features
	return recordPayload{
		RunID:         p.runID,
		Timestamp:     f.Timestamp,
		MidPrice:      f.MidPrice,
		Imbalance:     f.Imbalance,
		BidVolume:     f.BidVolume,
		AskVolume:     f.AskVolume,
		BidVolumeNear: f.BidVolumeNear,
		AskVolumeNear: f.AskVolumeNear,
		ActivitySpike: f.ActivitySpike,
		Agg:           f.Agg,
		Label:         rec.Label,
		FutureReturn:  rec.FutureReturn,
		LabelPrice:    rec.LabelPrice,
		LabeledAt:     rec.LabeledAt,
	}
}

// Publish sends one finalized record. Keyed by run id only so a whole run
// hashes to one partition and stays ordered.
func (p *KafkaRecordPublisher) Publish(ctx context.Context, rec *models.FinalizedRecord) error {
	return p.producer.Publish(ctx, p.topic, p.key(), p.payload(rec))
}

func (p *KafkaRecordPublisher) key() []byte { return []byte(p.runID) }

// Close closes the underlying producer.
func (p *KafkaRecordPublisher) Close() error {
	return p.producer.Close()
}
