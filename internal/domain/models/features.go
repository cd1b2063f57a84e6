package models

import "time"

// OrderBookSnapshot is the derived book feature vector republished after
// every applied update. Superseded by the next snapshot, never mutated.
type OrderBookSnapshot struct {
	Timestamp     time.Time
	MidPrice      float64
	Imbalance     float64 // (bidVol - askVol) / (bidVol + askVol) over top levels
	BidVolume     float64
	AskVolume     float64
	BidVolumeNear float64 // cumulative bid volume within the near-price band
	AskVolumeNear float64
}

// TradeAggregate is rolled-up trade activity over the trailing window.
type TradeAggregate struct {
	Timestamp  time.Time `json:"ts"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
	BuyMean    float64   `json:"buy_mean"`  // moving average of buy volume over the look-back
	SellMean   float64   `json:"sell_mean"` // moving average of sell volume over the look-back
	AvgPrice   float64   `json:"avg_price"` // volume-weighted average price in-window
	TradeCount int       `json:"trade_count"`
}

// SpikeReason classifies why an activity spike was raised.
type SpikeReason string

const (
	ReasonSpike          SpikeReason = "spike"
	ReasonImbalance      SpikeReason = "imbalance"
	ReasonVolumeExceeded SpikeReason = "volume_exceeded"
)

// ActivitySpikeEvent is a detected anomaly in trade activity.
// Immutable once created; every event is appended to the audit log.
type ActivitySpikeEvent struct {
	Timestamp    time.Time   `json:"ts"`
	Type         string      `json:"type"`
	BuyVolume    float64     `json:"buy_volume"`
	SellVolume   float64     `json:"sell_volume"`
	BuySellRatio float64     `json:"buy_sell_ratio"`
	AvgPrice     float64     `json:"avg_price"`
	TradeCount   int         `json:"trade_count"`
	MAVolume     float64     `json:"ma_volume"`
	Direction    Side        `json:"direction"`
	Reason       SpikeReason `json:"reason"`
}

// SignalEvent is a directional signal derived from one book snapshot.
type SignalEvent struct {
	Timestamp time.Time `json:"ts"`
	Direction Side      `json:"direction"`
	Imbalance float64   `json:"imbalance"`
	MidPrice  float64   `json:"mid_price"`
}

// FeatureEvent is the fused order-book feature record handed to the merger:
// one book snapshot enriched with the latest cached trade aggregate and the
// recent-activity flag.
type FeatureEvent struct {
	Timestamp     time.Time       `json:"ts"`
	MidPrice      float64         `json:"mid_price"`
	Imbalance     float64         `json:"imbalance"`
	BidVolume     float64         `json:"bid_volume"`
	AskVolume     float64         `json:"ask_volume"`
	BidVolumeNear float64         `json:"bid_volume_near"`
	AskVolumeNear float64         `json:"ask_volume_near"`
	ActivitySpike bool            `json:"activity_spike"`
	Agg           *TradeAggregate `json:"agg,omitempty"` // nil until the first aggregate arrives
}
