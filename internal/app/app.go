// Package app wires the forwarder together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apihttp "github.com/dopl-dev/stream-forwarder/internal/api/http"
	ingestctl "github.com/dopl-dev/stream-forwarder/internal/api/http/controllers/ingest"
	"github.com/dopl-dev/stream-forwarder/internal/api/http/controllers/system"
	"github.com/dopl-dev/stream-forwarder/internal/archive"
	"github.com/dopl-dev/stream-forwarder/internal/config"
	"github.com/dopl-dev/stream-forwarder/internal/health"
	"github.com/dopl-dev/stream-forwarder/internal/ingest"
	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

// App holds the validated config and the optional pre-built clients.
type App struct {
	cfg *config.Config
	log *slog.Logger

	producer      producer.Producer
	archiveClient archive.PutObjectAPI
}

type Option func(*App)

// WithProducer makes Run use p instead of building one from the config.
// Run still closes it on shutdown.
func WithProducer(p producer.Producer) Option {
	return func(a *App) { a.producer = p }
}

// WithArchiveClient replaces the S3 client used for the failure archive.
func WithArchiveClient(c archive.PutObjectAPI) Option {
	return func(a *App) { a.archiveClient = c }
}

func New(cfg *config.Config, log *slog.Logger, opts ...Option) *App {
	a := &App{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run builds the producer, serves HTTP until ctx is cancelled, then stops
// the server, flushes and closes the producer and drains the failure
// archive, all within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	p, err := a.buildProducer(ctx)
	if err != nil {
		return err
	}

	failuresDone := make(chan struct{})
	var archiver *archive.Archiver
	archiveDone := make(chan struct{})
	archiveCtx, stopArchive := context.WithCancel(context.Background())
	defer stopArchive()

	if a.cfg.ArchiveEnabled() {
		archiver, err = a.buildArchiver(ctx)
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
			defer cancel()
			return errors.Join(err, p.Close(closeCtx))
		}
		go func() {
			defer close(failuresDone)
			archiver.Collect(p.Failures())
		}()
		go func() {
			defer close(archiveDone)
			archiver.Run(archiveCtx)
		}()
	} else {
		close(archiveDone)
		go func() {
			defer close(failuresDone)
			producer.LogFailures(p.Failures(), a.log)
		}()
	}

	in := ingest.NewIngestor(
		ingest.NewValidator(ingest.ValidatorConfig{
			MaxRecordBytes: a.cfg.MaxRecordBytes,
			KeyBytes:       ingest.PartitionKeyBytes,
		}),
		p,
		a.cfg.StreamName,
		a.log.With("component", "ingest"),
	)

	var h *health.Health
	if archiver != nil {
		h = health.New(p, archiver)
	} else {
		h = health.New(p, nil)
	}

	srv := apihttp.NewServer(apihttp.ServerConfig{
		Addr:            a.cfg.ListenAddress,
		ShutdownTimeout: a.cfg.ShutdownTimeout(),
	}, a.log.With("component", "http"))
	srv.AddController(
		system.New(h),
		ingestctl.New(in, a.cfg.MaxBodyBytes, a.log.With("component", "http")),
	)

	a.log.Info("forwarder started",
		"addr", a.cfg.ListenAddress,
		"backend", a.cfg.Backend,
		"stream", a.cfg.StreamName,
		"archive", a.cfg.ArchiveEnabled(),
	)
	serveErr := srv.Start(ctx)

	return errors.Join(serveErr, a.shutdown(p, archiver, failuresDone, archiveDone, stopArchive))
}

func (a *App) shutdown(p producer.Producer, archiver *archive.Archiver, failuresDone, archiveDone <-chan struct{}, stopArchive context.CancelFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	a.log.Info("flushing producer")
	closeErr := p.Close(ctx)
	if closeErr != nil {
		a.log.Error("producer close", "error", closeErr)
	}

	select {
	case <-failuresDone:
	case <-ctx.Done():
		a.log.Warn("failure notifications still pending at shutdown deadline")
	}

	stopArchive()
	select {
	case <-archiveDone:
	case <-ctx.Done():
	}

	if archiver != nil {
		if left := archiver.Drain(ctx); left > 0 {
			a.log.Warn("failed records not archived before shutdown", "count", left)
		}
	}

	st := p.Stats()
	a.log.Info("forwarder stopped", "submitted", st.Submitted, "failed", st.Failed)
	return closeErr
}

func (a *App) buildProducer(ctx context.Context) (producer.Producer, error) {
	if a.producer != nil {
		return a.producer, nil
	}

	log := a.log.With("component", "producer", "backend", a.cfg.Backend)
	switch a.cfg.Backend {
	case config.BackendKafka:
		return producer.NewKafka(producer.KafkaConfig{
			Brokers:       a.cfg.KafkaBrokers,
			Topic:         a.cfg.StreamName,
			BatchSize:     a.cfg.BacklogCount,
			FlushInterval: a.cfg.FlushInterval(),
		}, log), nil
	default:
		p, err := producer.NewKinesis(ctx, producer.KinesisConfig{
			Region:         a.cfg.Region,
			StreamName:     a.cfg.StreamName,
			BacklogCount:   a.cfg.BacklogCount,
			MaxConnections: a.cfg.MaxConnections,
			FlushInterval:  a.cfg.FlushInterval(),
			HandoffTimeout: a.cfg.HandoffTimeout(),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("kinesis producer: %w", err)
		}
		return p, nil
	}
}

func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	client := a.archiveClient
	if client == nil {
		s3Client, err := archive.NewS3Client(ctx, a.cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failure archive: %w", err)
		}
		client = s3Client
	}
	return archive.New(
		client,
		a.cfg.FailureBucket,
		a.cfg.FailurePrefix,
		ingest.NewQueue[producer.FailedRecord](a.cfg.FailureQueueSize),
		a.log.With("component", "archive"),
	), nil
}
