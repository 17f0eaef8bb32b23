package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	kpl "github.com/a8m/kinesis-producer"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
)

// KinesisConfig configures the Kinesis adapter. Credentials come from the
// default AWS chain.
type KinesisConfig struct {
	Region         string
	StreamName     string
	BacklogCount   int
	MaxConnections int
	FlushInterval  time.Duration
	// HandoffTimeout bounds how long Submit waits for room in the backlog.
	HandoffTimeout time.Duration
}

const defaultHandoffTimeout = time.Second

// kplFailure is a failure reported by the kinesis-producer client.
type kplFailure struct {
	PartitionKey string
	Data         []byte
	Err          error
}

// kplClient is what the adapter drives: a kinesis-producer plus its
// failure stream.
type kplClient interface {
	Start()
	Stop()
	Put(data []byte, partitionKey string) error
	Failures() <-chan kplFailure
}

// kplProducer subscribes to the client's failure notifications at
// construction, before Start, so no failure is sent before anyone listens.
type kplProducer struct {
	*kpl.Producer
	failures chan kplFailure
}

func wrapKPL(p *kpl.Producer) *kplProducer {
	w := &kplProducer{Producer: p, failures: make(chan kplFailure, failureBuffer)}
	src := p.NotifyFailures()
	go func() {
		defer close(w.failures)
		for r := range src {
			w.failures <- kplFailure{PartitionKey: r.PartitionKey, Data: r.Data, Err: r}
		}
	}()
	return w
}

func (w *kplProducer) Failures() <-chan kplFailure {
	return w.failures
}

// Kinesis hands records to a kinesis-producer instance, which aggregates,
// batches and retries PutRecords calls in the background.
type Kinesis struct {
	counters
	client  kplClient
	stream  string
	handoff time.Duration

	// mu is held for reading around Put and for writing while closing, so
	// no Put races the client's Stop.
	mu sync.RWMutex

	stop      chan struct{}
	forwarded sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewKinesis loads AWS configuration for cfg.Region and starts a producer
// bound to cfg.StreamName.
func NewKinesis(ctx context.Context, cfg KinesisConfig, log *slog.Logger) (*Kinesis, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := kpl.New(&kpl.Config{
		StreamName:     cfg.StreamName,
		BacklogCount:   cfg.BacklogCount,
		MaxConnections: cfg.MaxConnections,
		FlushInterval:  cfg.FlushInterval,
		Client:         kinesis.NewFromConfig(awsCfg),
		Logger:         &kplLogger{log: log.With("component", "kinesis-producer")},
	})
	k := newKinesis(wrapKPL(client), cfg.StreamName, log)
	if cfg.HandoffTimeout > 0 {
		k.handoff = cfg.HandoffTimeout
	}
	return k, nil
}

func newKinesis(client kplClient, stream string, log *slog.Logger) *Kinesis {
	k := &Kinesis{
		client:  client,
		stream:  stream,
		handoff: defaultHandoffTimeout,
		stop:    make(chan struct{}),
	}
	k.counters.init(log)

	src := client.Failures()
	client.Start()

	k.forwarded.Add(1)
	go k.forwardFailures(src)
	return k
}

// Submit hands the record to the client. The client blocks while its
// backlog is full; after the handoff timeout Submit gives up with
// ErrBufferFull. The abandoned Put still completes once room frees up, so
// the record may be delivered anyway.
func (k *Kinesis) Submit(stream, partitionKey string, data []byte) error {
	if k.closed.Load() {
		return ErrProducerClosed
	}
	if stream != k.stream {
		return fmt.Errorf("%w: %q (producer writes to %q)", ErrUnknownStream, stream, k.stream)
	}

	done := make(chan error, 1)
	go func() {
		done <- k.put(partitionKey, data)
	}()

	timer := time.NewTimer(k.handoff)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		return fmt.Errorf("%w: no room in backlog after %s", ErrBufferFull, k.handoff)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrProducerClosed), errors.Is(err, kpl.ErrStoppedProducer):
			return ErrProducerClosed
		case errors.Is(err, kpl.ErrRecordSizeExceeded), errors.Is(err, kpl.ErrIllegalPartitionKey):
			return fmt.Errorf("%w: %v", ErrRecordRejected, err)
		default:
			return err
		}
	}

	k.submitted.Add(1)
	return nil
}

func (k *Kinesis) put(partitionKey string, data []byte) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed.Load() {
		return ErrProducerClosed
	}
	return k.client.Put(data, partitionKey)
}

func (k *Kinesis) Failures() <-chan FailedRecord {
	return k.failures
}

func (k *Kinesis) Stats() Stats {
	return k.stats()
}

// Close stops accepting records and waits for the client to flush its
// backlog. If ctx expires first, Close returns ctx.Err() and the flush
// continues in the background.
func (k *Kinesis) Close(ctx context.Context) error {
	k.closeOnce.Do(func() {
		k.closed.Store(true)

		done := make(chan struct{})
		go func() {
			// Stop only once no Put is inside the client.
			k.mu.Lock()
			k.client.Stop()
			k.mu.Unlock()
			close(k.stop)
			k.forwarded.Wait()
			close(k.failures)
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			k.closeErr = fmt.Errorf("flush kinesis producer: %w", ctx.Err())
		}
	})
	return k.closeErr
}

// forwardFailures translates client failures until the client closes its
// channel or Close signals stop, then drains whatever is already buffered.
func (k *Kinesis) forwardFailures(src <-chan kplFailure) {
	defer k.forwarded.Done()
	for {
		select {
		case r, ok := <-src:
			if !ok {
				return
			}
			k.emit(k.failedRecord(r))
		case <-k.stop:
			for {
				select {
				case r, ok := <-src:
					if !ok {
						return
					}
					k.emit(k.failedRecord(r))
				default:
					return
				}
			}
		}
	}
}

func (k *Kinesis) failedRecord(r kplFailure) FailedRecord {
	msg := "unknown failure"
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return FailedRecord{
		Stream:       k.stream,
		PartitionKey: r.PartitionKey,
		Data:         r.Data,
		Error:        msg,
		FailedAt:     time.Now().UTC(),
	}
}

// kplLogger adapts slog to the kinesis-producer Logger interface.
type kplLogger struct {
	log *slog.Logger
}

func (l *kplLogger) Info(msg string, values ...kpl.LogValue) {
	l.log.Info(msg, logArgs(values)...)
}

func (l *kplLogger) Error(msg string, err error, values ...kpl.LogValue) {
	l.log.Error(msg, append([]any{"error", err}, logArgs(values)...)...)
}

func logArgs(values []kpl.LogValue) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, slog.Any(v.Name, v.Value))
	}
	return args
}
