package ingest

import (
	"errors"
	"fmt"

	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

// Submission is the decoded body of a submit request. Only "data" is
// recognized; other keys are ignored.
type Submission struct {
	Data string
}

// Record is what gets handed to the producer: one submission, freshly keyed.
type Record struct {
	Stream       string
	PartitionKey string
	Data         []byte
}

var (
	// ErrInvalidJSON is returned when the body is not a JSON object.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrMissingData is returned when "data" is absent or null.
	ErrMissingData = errors.New(`missing "data" field`)
	// ErrDataNotText is returned when "data" is present but not a JSON string.
	ErrDataNotText = errors.New(`"data" must be a string`)
	// ErrInvalidEncoding is returned for bodies that are not valid UTF-8 and
	// for strings carrying unpaired UTF-16 surrogate escapes.
	ErrInvalidEncoding = errors.New("text is not representable as UTF-8")
)

// BodyTooLargeError is returned when the request body exceeds the configured limit.
type BodyTooLargeError struct {
	Max int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("request body exceeds limit of %d bytes", e.Max)
}

// RecordTooLargeError is returned when the encoded data exceeds the record limit.
type RecordTooLargeError struct {
	Size int
	Max  int64
}

func (e *RecordTooLargeError) Error() string {
	return fmt.Sprintf("record size %d exceeds max %d bytes", e.Size, e.Max)
}

// Reason returns a short, stable label for err. It is used as a metric label
// and as the key for rate-limited drop logging.
func Reason(err error) string {
	var tooLarge *BodyTooLargeError
	var recordTooLarge *RecordTooLargeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &tooLarge):
		return "body_too_large"
	case errors.As(err, &recordTooLarge):
		return "record_too_large"
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrMissingData):
		return "missing_data"
	case errors.Is(err, ErrDataNotText):
		return "data_not_text"
	case errors.Is(err, ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, producer.ErrProducerClosed):
		return "producer_closed"
	case errors.Is(err, producer.ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, producer.ErrRecordRejected):
		return "producer_rejected"
	default:
		return "producer_error"
	}
}
