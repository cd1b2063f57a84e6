package models

import "time"

// Label is the categorical outcome of the forward-return check.
type Label string

const (
	LabelUp   Label = "up"
	LabelDown Label = "down"
	LabelFlat Label = "flat"
)

// PendingRecord is a feature vector waiting for a future price observation.
// It exists from the moment the merger accepts a FeatureEvent until it is
// finalized, or force-resolved at shutdown.
type PendingRecord struct {
	Features   FeatureEvent
	CreatedAt  time.Time
	TargetTime time.Time // CreatedAt + future offset
}

// FinalizedRecord is a PendingRecord with its label attached.
// Created exactly once per pending record; immutable.
type FinalizedRecord struct {
	Features     FeatureEvent `json:"features"`
	Label        Label        `json:"label"`
	FutureReturn float64      `json:"future_return"`
	LabelPrice   float64      `json:"label_price"` // the price observation that resolved the record
	LabeledAt    time.Time    `json:"labeled_at"`
}

// ModelPrediction is the scoring output for one finalized record.
// Ephemeral; not persisted by the pipeline.
type ModelPrediction struct {
	Direction  string    `json:"direction"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"ts"`
}
