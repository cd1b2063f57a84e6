package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	// RunID namespaces output rows and topics; empty means one is derived
	// from the start time at load.
	RunID string `yaml:"run_id"`

	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`

	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Feed struct {
		URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/stream" validate:"required"`
		Symbol         string        `yaml:"symbol" default:"btcusdt" validate:"required"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`

	Pipeline struct {
		Window            time.Duration `yaml:"window" default:"1s"`
		Lookback          time.Duration `yaml:"lookback" default:"60s"`
		FutureOffset      time.Duration `yaml:"future_offset" default:"5s"`
		LabelThresholdPct float64       `yaml:"label_threshold_pct" default:"0.001" validate:"gt=0"`
		NearBandPct       float64       `yaml:"near_band_pct" default:"0.002" validate:"gt=0"`
		TopLevels         int           `yaml:"top_levels" default:"5" validate:"gt=0"`
		FlushInterval     time.Duration `yaml:"flush_interval" default:"2s"`
		BatchSize         int           `yaml:"batch_size" default:"500" validate:"gt=0"`
		MaxPending        int           `yaml:"max_pending" default:"10000" validate:"gt=0"`
		MaxPendingAge     time.Duration `yaml:"max_pending_age" default:"60s"`
		ActivityTTL       time.Duration `yaml:"activity_ttl" default:"1s"`
	} `yaml:"pipeline"`

	Activity struct {
		VolumeThreshold float64 `yaml:"volume_threshold" default:"10.0" validate:"gt=0"`
		ImbalanceHigh   float64 `yaml:"imbalance_ratio_high" default:"2.0" validate:"gt=0"`
		ImbalanceLow    float64 `yaml:"imbalance_ratio_low" default:"0.5" validate:"gt=0"`
		SpikeMultiplier float64 `yaml:"spike_multiplier" default:"1.2" validate:"gt=0"`
		AuditPath       string  `yaml:"audit_path" default:"activity_spikes.jsonl"`
	} `yaml:"activity"`

	Signal struct {
		ImbalanceThreshold float64 `yaml:"imbalance_threshold" default:"0.7" validate:"gt=0"`
	} `yaml:"signal"`

	Model struct {
		// Path to the artifact bundle; empty disables inference.
		Path string `yaml:"path"`
	} `yaml:"model"`

	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost" validate:"required"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"lobfuse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"lobfuse.merged"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl" default:"30s"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file, applying defaults first.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if c.RunID == "" {
		c.RunID = fmt.Sprintf("lobfuse_%d", time.Now().Unix())
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Feed.Symbol = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("RUN_ID"); v != "" {
		c.RunID = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Activity.ImbalanceLow >= c.Activity.ImbalanceHigh {
		return fmt.Errorf("activity.imbalance_ratio_low must be below imbalance_ratio_high")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
