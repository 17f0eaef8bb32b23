// Package config loads and validates forwarder configuration from environment
// variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendKinesis = "kinesis"
	BackendKafka   = "kafka"
)

// Config is filled by envconfig with no prefix, so variables are read
// exactly as named in the envconfig tags (REGION, STREAM_NAME, ...).
type Config struct {
	// Destination
	Region     string `envconfig:"REGION" required:"true"`
	StreamName string `envconfig:"STREAM_NAME" required:"true"`
	Backend    string `envconfig:"BACKEND" default:"kinesis"`

	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"` // comma separated

	// Server
	ListenAddress string `envconfig:"LISTEN_ADDRESS" default:"0.0.0.0:8080"`

	// Ingest limits
	MaxBodyBytes   int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	MaxRecordBytes int64 `envconfig:"MAX_RECORD_BYTES" default:"1048576"`

	// Producer
	BacklogCount     int   `envconfig:"BACKLOG_COUNT" default:"2000"`
	FlushIntervalMs  int64 `envconfig:"FLUSH_INTERVAL_MS" default:"5000"`
	MaxConnections   int   `envconfig:"MAX_CONNECTIONS" default:"24"`
	HandoffTimeoutMs int64 `envconfig:"HANDOFF_TIMEOUT_MS" default:"1000"`

	// Failure archive, disabled when FailureBucket is empty
	FailureBucket    string `envconfig:"FAILURE_BUCKET"`
	FailurePrefix    string `envconfig:"FAILURE_PREFIX" default:"failed-records/"`
	FailureQueueSize int    `envconfig:"FAILURE_QUEUE_SIZE" default:"1000"`

	// General
	ShutdownTimeoutMs int64  `envconfig:"SHUTDOWN_TIMEOUT_MS" default:"10000"`
	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// HandoffTimeout bounds how long a request waits for room in the producer
// backlog before it is answered with 503.
func (c *Config) HandoffTimeout() time.Duration {
	return time.Duration(c.HandoffTimeoutMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// ArchiveEnabled reports whether failed deliveries should be written to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.FailureBucket != ""
}

func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("REGION must be set")
	}

	if c.StreamName == "" {
		return errors.New("STREAM_NAME must be set")
	}

	if c.Backend != BackendKinesis && c.Backend != BackendKafka {
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendKinesis, BackendKafka)
	}

	if c.Backend == BackendKafka && c.KafkaBrokers == "" {
		return errors.New("kafka backend requires KAFKA_BROKERS")
	}

	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be > 0")
	}

	if c.MaxRecordBytes <= 0 || c.MaxRecordBytes > c.MaxBodyBytes {
		return errors.New("invalid record byte limit")
	}

	if c.BacklogCount <= 0 {
		return errors.New("backlog count must be > 0")
	}

	if c.FlushIntervalMs <= 0 {
		return errors.New("flush interval must be > 0")
	}

	if c.MaxConnections <= 0 {
		return errors.New("max connections must be > 0")
	}

	if c.HandoffTimeoutMs <= 0 {
		return errors.New("handoff timeout must be > 0")
	}

	if c.ArchiveEnabled() && c.FailureQueueSize <= 0 {
		return errors.New("failure queue size must be > 0")
	}

	if c.ShutdownTimeoutMs <= 0 {
		return errors.New("shutdown timeout must be > 0")
	}

	return nil
}

// Load reads .env (when present) into the environment, then fills and
// validates a Config. A missing REGION or STREAM_NAME is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: no .env file, using process environment", "error", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}
