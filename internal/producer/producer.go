// Package producer defines the stream producer the forwarder hands records
// to, with adapters for Kinesis Data Streams and Kafka. Batching, retries and
// delivery are owned by the underlying client libraries.
package producer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dopl-dev/stream-forwarder/internal/metrics"
)

var (
	// ErrProducerClosed is returned by Submit after Close.
	ErrProducerClosed = errors.New("producer closed")
	// ErrUnknownStream is returned when Submit names a stream the producer
	// was not built for.
	ErrUnknownStream = errors.New("unknown stream")
	// ErrBufferFull is returned when the client's backlog stays full for
	// longer than the handoff timeout. Callers may retry.
	ErrBufferFull = errors.New("producer buffer full")
	// ErrRecordRejected wraps client-library refusals of a single record
	// (size limits, illegal partition key).
	ErrRecordRejected = errors.New("record rejected by producer")
)

// failureBuffer is the capacity of the channel returned by Failures.
const failureBuffer = 256

// Producer accepts records for asynchronous delivery. Implementations are
// safe for concurrent use.
type Producer interface {
	// Submit enqueues one record. It returns once the record is buffered by
	// the client library, never after a network round trip.
	Submit(stream, partitionKey string, data []byte) error
	// Failures reports records the client gave up on. The channel is closed
	// once Close has flushed the client. Callers must drain it.
	Failures() <-chan FailedRecord
	Stats() Stats
	// Close flushes buffered records and stops the client. It is idempotent.
	Close(ctx context.Context) error
}

// FailedRecord is a record the client library could not deliver.
type FailedRecord struct {
	Stream       string    `json:"stream"`
	PartitionKey string    `json:"partition_key"`
	Data         []byte    `json:"data"`
	Error        string    `json:"error"`
	FailedAt     time.Time `json:"failed_at"`
}

type Stats struct {
	Submitted uint64
	Failed    uint64
	Open      bool
}

// counters holds the state shared by both adapters.
type counters struct {
	submitted atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	failures  chan FailedRecord
	log       *slog.Logger
}

func (c *counters) init(log *slog.Logger) {
	c.failures = make(chan FailedRecord, failureBuffer)
	c.log = log
}

func (c *counters) stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Failed:    c.failed.Load(),
		Open:      !c.closed.Load(),
	}
}

// emit blocks until the failure is taken by the consumer of Failures.
func (c *counters) emit(r FailedRecord) {
	c.failed.Add(1)
	metrics.DeliveryFailures.Inc()
	c.failures <- r
}

// LogFailures drains src, logging each failure, until src is closed. Used
// when no failure archive is configured.
func LogFailures(src <-chan FailedRecord, log *slog.Logger) {
	for r := range src {
		log.Error("record delivery failed",
			"stream", r.Stream,
			"partition_key", r.PartitionKey,
			"bytes", len(r.Data),
			"error", r.Error,
		)
	}
}
