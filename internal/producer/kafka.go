package producer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka adapter. The stream name is the topic.
type KafkaConfig struct {
	Brokers       string // comma separated
	Topic         string
	BatchSize     int
	FlushInterval time.Duration
}

func (c KafkaConfig) brokers() []string {
	parts := strings.Split(c.Brokers, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// messageWriter is the subset of *kafka.Writer the adapter drives.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka hands records to an asynchronous kafka.Writer. The partition key is
// the message key, so the hash balancer places records by key.
type Kafka struct {
	counters
	w     messageWriter
	topic string

	closeOnce sync.Once
	closeErr  error
}

func NewKafka(cfg KafkaConfig, log *slog.Logger) *Kafka {
	k := &Kafka{topic: cfg.Topic}
	k.counters.init(log)
	k.w = &kafka.Writer{
		Addr:         kafka.TCP(cfg.brokers()...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.FlushInterval,
		Async:        true,
		Completion:   k.complete,
	}
	return k
}

func (k *Kafka) Submit(stream, partitionKey string, data []byte) error {
	if k.closed.Load() {
		return ErrProducerClosed
	}
	if stream != k.topic {
		return fmt.Errorf("%w: %q (producer writes to %q)", ErrUnknownStream, stream, k.topic)
	}

	// In async mode WriteMessages only enqueues, so the context is not a
	// network deadline.
	err := k.w.WriteMessages(context.Background(), kafka.Message{
		Topic: stream,
		Key:   []byte(partitionKey),
		Value: data,
	})
	if err != nil {
		if k.closed.Load() {
			return ErrProducerClosed
		}
		return err
	}

	k.submitted.Add(1)
	return nil
}

// complete is the writer's Completion callback, invoked once per batch.
func (k *Kafka) complete(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	now := time.Now().UTC()
	for _, m := range messages {
		k.emit(FailedRecord{
			Stream:       m.Topic,
			PartitionKey: string(m.Key),
			Data:         m.Value,
			Error:        err.Error(),
			FailedAt:     now,
		})
	}
}

func (k *Kafka) Failures() <-chan FailedRecord {
	return k.failures
}

func (k *Kafka) Stats() Stats {
	return k.stats()
}

// Close flushes pending batches. Completions for those batches run before
// the writer's Close returns, so Failures is closed after it.
func (k *Kafka) Close(ctx context.Context) error {
	k.closeOnce.Do(func() {
		k.closed.Store(true)

		done := make(chan error, 1)
		go func() {
			err := k.w.Close()
			close(k.failures)
			done <- err
		}()

		select {
		case err := <-done:
			if err != nil {
				k.closeErr = fmt.Errorf("close kafka writer: %w", err)
			}
		case <-ctx.Done():
			k.closeErr = fmt.Errorf("flush kafka writer: %w", ctx.Err())
		}
	})
	return k.closeErr
}
