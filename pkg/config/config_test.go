package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalYAML = `
environment: test
feed:
  symbol: ethusdt
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "ethusdt", cfg.Feed.Symbol)
	assert.Equal(t, time.Second, cfg.Pipeline.Window)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FutureOffset)
	assert.Equal(t, 0.001, cfg.Pipeline.LabelThresholdPct)
	assert.Equal(t, 10.0, cfg.Activity.VolumeThreshold)
	assert.Equal(t, 0.7, cfg.Signal.ImbalanceThreshold)
	assert.Equal(t, "lobfuse", cfg.ClickHouse.Database)
	assert.NotEmpty(t, cfg.RunID, "run id derived when absent")
}

func TestLoadKeepsExplicitRunID(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML+"run_id: run_backtest_1\n"))
	require.NoError(t, err)
	assert.Equal(t, "run_backtest_1", cfg.RunID)
}

func TestValidateRejectsInvertedImbalanceBounds(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
activity:
  imbalance_ratio_high: 0.5
  imbalance_ratio_low: 2.0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imbalance_ratio_low")
}

func TestValidateRejectsKafkaWithoutBrokers(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
kafka:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokers")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOL", "SOLUSDT")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RUN_ID", "run_env")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "solusdt", cfg.Feed.Symbol)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, "run_env", cfg.RunID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
