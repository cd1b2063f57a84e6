package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LOBFuse/pkg/config"
	applogger "LOBFuse/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func TestProvideModelRunnerDisabled(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, ProvideModelRunner(cfg, testLogger(t)))
}

func TestProvideModelRunnerMissingArtifactDisablesInference(t *testing.T) {
	cfg := &config.Config{}
	cfg.Model.Path = filepath.Join(t.TempDir(), "missing.json")

	// the pipeline must still come up when the artifact cannot be loaded
	assert.Nil(t, ProvideModelRunner(cfg, testLogger(t)))
}

func TestProvideModelRunnerInvalidArtifactDisablesInference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"feature_names":[]}`), 0o644))

	cfg := &config.Config{}
	cfg.Model.Path = path
	assert.Nil(t, ProvideModelRunner(cfg, testLogger(t)))
}

func TestProvideModelRunnerLoadsArtifact(t *testing.T) {
	artifact := `{
		"feature_names": ["imbalance", "buy_volume"],
		"scaler": {"mean": [0, 0], "scale": [1, 1]},
		"model": {"classes": ["down", "up"], "coef": [[0.5, 0.1]], "intercept": [0.0]}
	}`
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))

	cfg := &config.Config{}
	cfg.Model.Path = path
	assert.NotNil(t, ProvideModelRunner(cfg, testLogger(t)))
}
