// Package archive writes records the producer could not deliver to S3, so
// they can be inspected or replayed.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dopl-dev/stream-forwarder/internal/ingest"
	"github.com/dopl-dev/stream-forwarder/internal/metrics"
	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

// PutObjectAPI is the part of *s3.Client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ PutObjectAPI = (*s3.Client)(nil)

// NewS3Client builds an S3 client for region from the default AWS chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Archiver drains a queue of failed records into an S3 bucket, one JSON
// object per record.
type Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	queue  *ingest.Queue[producer.FailedRecord]
	log    *slog.Logger
}

func New(client PutObjectAPI, bucket, prefix string, queue *ingest.Queue[producer.FailedRecord], log *slog.Logger) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		queue:  queue,
		log:    log,
	}
}

// Collect moves failures from src onto the queue until src is closed.
// A full queue drops the record; it is logged so the data is not lost
// silently.
func (a *Archiver) Collect(src <-chan producer.FailedRecord) {
	for r := range src {
		if !a.queue.TryEnqueue(r) {
			metrics.ArchiveDropped.WithLabelValues("queue_full").Inc()
			a.log.Error("failure archive queue full, dropping record",
				"stream", r.Stream,
				"partition_key", r.PartitionKey,
				"error", r.Error,
			)
		}
	}
}

// Run archives queued records until ctx is cancelled. A PutObject already in
// flight when ctx is cancelled is allowed to finish.
func (a *Archiver) Run(ctx context.Context) {
	for {
		r, ok := a.queue.Dequeue(ctx)
		if !ok {
			return
		}
		a.archiveOrLog(context.WithoutCancel(ctx), r)
	}
}

// Drain archives whatever is still queued, stopping early if ctx expires.
// It returns the number of records left behind.
func (a *Archiver) Drain(ctx context.Context) int {
	for ctx.Err() == nil {
		r, ok := a.queue.TryDequeue()
		if !ok {
			return 0
		}
		a.archiveOrLog(ctx, r)
	}
	return a.queue.Depth()
}

func (a *Archiver) archiveOrLog(ctx context.Context, r producer.FailedRecord) {
	if err := a.Archive(ctx, r); err != nil {
		metrics.ArchiveDropped.WithLabelValues("put_failed").Inc()
		a.log.Error("archive failed record",
			"bucket", a.bucket,
			"partition_key", r.PartitionKey,
			"error", err,
		)
	}
}

// Archive writes r to the bucket under Key(r).
func (a *Archiver) Archive(ctx context.Context, r producer.FailedRecord) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode failed record: %w", err)
	}

	key := a.Key(r)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}

	metrics.RecordsArchived.Inc()
	a.log.Debug("archived failed record", "bucket", a.bucket, "key", key)
	return nil
}

// Key is <prefix><stream>/<yyyy>/<mm>/<dd>/<partition key>.json, dated by
// the failure time in UTC.
func (a *Archiver) Key(r producer.FailedRecord) string {
	return a.prefix + path.Join(r.Stream, r.FailedAt.UTC().Format("2006/01/02"), r.PartitionKey+".json")
}

// QueueDepth and QueueCapacity expose the backlog for readiness checks.
func (a *Archiver) QueueDepth() int {
	return a.queue.Depth()
}

func (a *Archiver) QueueCapacity() int {
	return a.queue.Capacity()
}
