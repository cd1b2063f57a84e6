package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"LOBFuse/internal/domain/models"
	applogger "LOBFuse/pkg/logger"
)

// Artifact is the serialized model bundle: an ordered feature list, a
// standardizing transform, and a fitted linear classifier.
type Artifact struct {
	FeatureNames []string `json:"feature_names"`
	Scaler       struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Model struct {
		Classes   []string    `json:"classes"`
		Coef      [][]float64 `json:"coef"`
		Intercept []float64   `json:"intercept"`
	} `json:"model"`
}

// ModelRunner scores finalized records with a loaded artifact bundle.
// Construction fails fast on a broken bundle; Predict never panics past its
// boundary and always returns either a prediction or an error value.
type ModelRunner struct {
	art    Artifact
	logger *applogger.Logger
}

// NewModelRunner loads and validates the artifact at path.
func NewModelRunner(path string, l *applogger.Logger) (*ModelRunner, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(b, &art); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if err := validateArtifact(&art); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}
	return &ModelRunner{art: art, logger: l}, nil
}

func validateArtifact(a *Artifact) error {
	n := len(a.FeatureNames)
	if n == 0 {
		return fmt.Errorf("empty feature list")
	}
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
		return fmt.Errorf("scaler shape mismatch: %d features, %d/%d scaler",
			n, len(a.Scaler.Mean), len(a.Scaler.Scale))
	}
	if len(a.Model.Classes) < 2 {
		return fmt.Errorf("need at least two classes, got %d", len(a.Model.Classes))
	}
	if len(a.Model.Coef) == 0 || len(a.Model.Coef) != len(a.Model.Intercept) {
		return fmt.Errorf("coefficient shape mismatch")
	}
	for _, row := range a.Model.Coef {
		if len(row) != n {
			return fmt.Errorf("coefficient row length %d != %d features", len(row), n)
		}
	}
	return nil
}

// Predict extracts the configured features in order, standardizes them and
// scores the record. Missing features yield an error, never a panic.
func (r *ModelRunner) Predict(rec *models.FinalizedRecord) (models.ModelPrediction, error) {
	x := make([]float64, len(r.art.FeatureNames))
	for i, name := range r.art.FeatureNames {
		v, ok := featureValue(rec, name)
		if !ok {
			return models.ModelPrediction{}, fmt.Errorf("missing feature %q", name)
		}
		scale := r.art.Scaler.Scale[i]
		if scale == 0 {
			scale = 1
		}
		x[i] = (v - r.art.Scaler.Mean[i]) / scale
	}

	probs := r.scores(x)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return models.ModelPrediction{
		Direction:  r.art.Model.Classes[best],
		Confidence: probs[best],
		Timestamp:  rec.Features.Timestamp,
	}, nil
}

// scores computes per-class probabilities: sigmoid for the binary
// single-row form, softmax for the multinomial form.
func (r *ModelRunner) scores(x []float64) []float64 {
	coef := r.art.Model.Coef
	if len(coef) == 1 && len(r.art.Model.Classes) == 2 {
		z := r.art.Model.Intercept[0]
		for i, w := range coef[0] {
			z += w * x[i]
		}
		p := 1 / (1 + math.Exp(-z))
		return []float64{1 - p, p}
	}

	logits := make([]float64, len(coef))
	maxLogit := math.Inf(-1)
	for c, row := range coef {
		z := r.art.Model.Intercept[c]
		for i, w := range row {
			z += w * x[i]
		}
		logits[c] = z
		if z > maxLogit {
			maxLogit = z
		}
	}
	var sum float64
	for c := range logits {
		logits[c] = math.Exp(logits[c] - maxLogit)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits
}

// featureValue maps an artifact feature name onto a record field.
func featureValue(rec *models.FinalizedRecord, name string) (float64, bool) {
	f := rec.Features
	switch name {
	case "mid_price":
		return f.MidPrice, true
	case "imbalance":
		return f.Imbalance, true
	case "bid_volume":
		return f.BidVolume, true
	case "ask_volume":
		return f.AskVolume, true
	case "bid_volume_near":
		return f.BidVolumeNear, true
	case "ask_volume_near":
		return f.AskVolumeNear, true
	case "activity_spike":
		if f.ActivitySpike {
			return 1, true
		}
		return 0, true
	case "ts":
		return float64(f.Timestamp.UnixNano()) / float64(time.Second), true
	}
	if f.Agg == nil {
		return 0, false
	}
	switch name {
	case "buy_volume":
		return f.Agg.BuyVolume, true
	case "sell_volume":
		return f.Agg.SellVolume, true
	case "buy_mean":
		return f.Agg.BuyMean, true
	case "sell_mean":
		return f.Agg.SellMean, true
	case "avg_price":
		return f.Agg.AvgPrice, true
	case "trade_count":
		return float64(f.Agg.TradeCount), true
	}
	return 0, false
}
