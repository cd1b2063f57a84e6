package inference

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/internal/domain/models"
)

const artifactJSON = `{
  "feature_names": ["mid_price", "imbalance", "bid_volume", "ask_volume", "activity_spike"],
  "scaler": {
    "mean":  [100, 0, 10, 10, 0],
    "scale": [10, 0.5, 5, 5, 1]
  },
  "model": {
    "classes": ["down", "flat", "up"],
    "coef": [
      [-1, -2, -0.5, 0.5, -0.2],
      [0, 0, 0, 0, 0],
      [1, 2, 0.5, -0.5, 0.2]
    ],
    "intercept": [0, 0.1, 0]
  }
}`

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func record(mid, imb, bidVol, askVol float64, spike bool) *models.FinalizedRecord {
	return &models.FinalizedRecord{
		Features: models.FeatureEvent{
			Timestamp:     time.Now(),
			MidPrice:      mid,
			Imbalance:     imb,
			BidVolume:     bidVol,
			AskVolume:     askVol,
			ActivitySpike: spike,
		},
		Label: models.LabelFlat,
	}
}

func TestLoadAndPredict(t *testing.T) {
	r, err := NewModelRunner(writeArtifact(t, artifactJSON), nil)
	require.NoError(t, err)

	// strongly positive standardized features favour the "up" class
	pred, err := r.Predict(record(120, 0.8, 20, 5, true))
	require.NoError(t, err)
	assert.Equal(t, "up", pred.Direction)
	assert.Greater(t, pred.Confidence, 0.5)

	pred, err = r.Predict(record(80, -0.8, 5, 20, false))
	require.NoError(t, err)
	assert.Equal(t, "down", pred.Direction)

	// the neutral point lands on the class with the intercept edge
	pred, err = r.Predict(record(100, 0, 10, 10, false))
	require.NoError(t, err)
	assert.Equal(t, "flat", pred.Direction)
	assert.InDelta(t, 1.0/3, pred.Confidence, 0.05)
}

func TestBinarySigmoidForm(t *testing.T) {
	body := `{
	  "feature_names": ["imbalance"],
	  "scaler": {"mean": [0], "scale": [1]},
	  "model": {"classes": ["down", "up"], "coef": [[3]], "intercept": [0]}
	}`
	r, err := NewModelRunner(writeArtifact(t, body), nil)
	require.NoError(t, err)

	pred, err := r.Predict(record(100, 1, 1, 1, false))
	require.NoError(t, err)
	assert.Equal(t, "up", pred.Direction)
	assert.InDelta(t, 0.9526, pred.Confidence, 1e-3)

	pred, err = r.Predict(record(100, -1, 1, 1, false))
	require.NoError(t, err)
	assert.Equal(t, "down", pred.Direction)
}

func TestMissingFeatureReturnsError(t *testing.T) {
	body := `{
	  "feature_names": ["buy_volume"],
	  "scaler": {"mean": [0], "scale": [1]},
	  "model": {"classes": ["down", "up"], "coef": [[1]], "intercept": [0]}
	}`
	r, err := NewModelRunner(writeArtifact(t, body), nil)
	require.NoError(t, err)

	// record carries no trade aggregate, so buy_volume is absent
	_, err = r.Predict(record(100, 0, 1, 1, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buy_volume")
}

func TestAggregateFeatures(t *testing.T) {
	body := `{
	  "feature_names": ["buy_volume", "sell_volume"],
	  "scaler": {"mean": [0, 0], "scale": [1, 1]},
	  "model": {"classes": ["down", "up"], "coef": [[1, -1]], "intercept": [0]}
	}`
	r, err := NewModelRunner(writeArtifact(t, body), nil)
	require.NoError(t, err)

	rec := record(100, 0, 1, 1, false)
	rec.Features.Agg = &models.TradeAggregate{BuyVolume: 5, SellVolume: 1}
	pred, err := r.Predict(rec)
	require.NoError(t, err)
	assert.Equal(t, "up", pred.Direction)
}

func TestConstructionFailsFast(t *testing.T) {
	_, err := NewModelRunner(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)

	_, err = NewModelRunner(writeArtifact(t, "not json"), nil)
	require.Error(t, err)

	// scaler shape mismatch
	_, err = NewModelRunner(writeArtifact(t, `{
	  "feature_names": ["a", "b"],
	  "scaler": {"mean": [0], "scale": [1]},
	  "model": {"classes": ["down", "up"], "coef": [[1, 1]], "intercept": [0]}
	}`), nil)
	require.Error(t, err)

	// coefficient row length mismatch
	_, err = NewModelRunner(writeArtifact(t, `{
	  "feature_names": ["a"],
	  "scaler": {"mean": [0], "scale": [1]},
	  "model": {"classes": ["down", "up"], "coef": [[1, 2]], "intercept": [0]}
	}`), nil)
	require.Error(t, err)
}
