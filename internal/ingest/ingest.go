// Package ingest turns submit requests into keyed records and hands them to
// the stream producer.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dopl-dev/stream-forwarder/internal/metrics"
)

// PartitionKeyBytes is the length of every generated partition key (a
// canonical UUID string).
const PartitionKeyBytes = 36

// dropLogCooldown is the minimum time between log warnings for the same drop
// reason.
const dropLogCooldown = 10 * time.Second

// Submitter is the part of the producer the Ingestor needs.
type Submitter interface {
	Submit(stream, partitionKey string, data []byte) error
}

// Ingestor is the orchestration layer between the HTTP handler and the
// producer.
//
//	HTTP handler
//	    │
//	    ▼
//	Ingestor.Submit(sub)
//	    │
//	    ├── Validator.Validate(sub)        ── invalid → rejected[reason]++
//	    │
//	    └── Submitter.Submit(stream, key, data)
//	                                        ── error  → rejected[reason]++
//	                                        ── ok     → submitted++
type Ingestor struct {
	validator *Validator
	producer  Submitter
	stream    string
	newKey    func() string
	log       *slog.Logger

	dropLogMu sync.Mutex
	dropLogAt map[string]time.Time
}

// NewIngestor wires a Validator and a producer together. Every record is
// sent to stream.
func NewIngestor(v *Validator, p Submitter, stream string, log *slog.Logger) *Ingestor {
	return &Ingestor{
		validator: v,
		producer:  p,
		stream:    stream,
		newKey:    uuid.NewString,
		log:       log,
		dropLogAt: make(map[string]time.Time),
	}
}

// Submit validates s, assigns it a fresh random partition key and hands it
// to the producer. A nil error means the record was accepted for
// asynchronous delivery, not that the backend stored it.
func (in *Ingestor) Submit(s Submission) (Record, error) {
	if result := in.validator.Validate(&s); !result.OK {
		in.Reject(result.Err)
		return Record{}, result.Err
	}

	rec := Record{
		Stream:       in.stream,
		PartitionKey: in.newKey(),
		Data:         []byte(s.Data),
	}

	if err := in.producer.Submit(rec.Stream, rec.PartitionKey, rec.Data); err != nil {
		err = fmt.Errorf("submit to %s: %w", rec.Stream, err)
		in.Reject(err)
		return Record{}, err
	}

	metrics.RecordsSubmitted.Inc()
	in.log.Debug("record submitted", "stream", rec.Stream, "partition_key", rec.PartitionKey, "bytes", len(rec.Data))
	return rec, nil
}

// Reject counts a refused submission and logs it, at most once per
// dropLogCooldown for each reason. The HTTP layer calls it for decode errors.
func (in *Ingestor) Reject(err error) {
	reason := Reason(err)
	metrics.RecordsRejected.WithLabelValues(reason).Inc()
	if in.ShouldLogDrop(reason) {
		in.log.Warn("rejecting submission", "reason", reason, "error", err)
	}
}

// Stream returns the destination stream name.
func (in *Ingestor) Stream() string {
	return in.stream
}

// ShouldLogDrop returns true if a warning for reason has not been emitted
// within the last dropLogCooldown window.
func (in *Ingestor) ShouldLogDrop(reason string) bool {
	in.dropLogMu.Lock()
	defer in.dropLogMu.Unlock()

	last, seen := in.dropLogAt[reason]
	if !seen || time.Since(last) >= dropLogCooldown {
		in.dropLogAt[reason] = time.Now()
		return true
	}
	return false
}
