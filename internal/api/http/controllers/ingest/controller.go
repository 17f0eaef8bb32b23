package ingest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dopl-dev/stream-forwarder/internal/ingest"
	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

// Ingestor is satisfied by *ingest.Ingestor.
type Ingestor interface {
	Submit(s ingest.Submission) (ingest.Record, error)
	Reject(err error)
}

// Controller serves the submit route.
type Controller struct {
	in           Ingestor
	maxBodyBytes int64
	log          *slog.Logger
}

func New(in Ingestor, maxBodyBytes int64, log *slog.Logger) *Controller {
	return &Controller{in: in, maxBodyBytes: maxBodyBytes, log: log}
}

func (c *Controller) RegisterRoutes(r *gin.Engine) {
	r.POST("/", c.submit)
}

// submit answers 200 with an empty body once the record is handed to the
// producer. Errors carry no payload, only the status.
func (c *Controller) submit(ctx *gin.Context) {
	sub, err := ingest.DecodeSubmissionFromHTTP(ctx.Request, ctx.Writer, c.maxBodyBytes)
	if err != nil {
		c.in.Reject(err)
		ctx.AbortWithStatus(StatusFor(err))
		return
	}

	if _, err := c.in.Submit(sub); err != nil {
		code := StatusFor(err)
		if code >= http.StatusInternalServerError {
			c.log.Error("submit failed", "error", err)
		}
		ctx.AbortWithStatus(code)
		return
	}

	ctx.Status(http.StatusOK)
}

// StatusFor maps a submit error to its HTTP status.
func StatusFor(err error) int {
	var bodyTooLarge *ingest.BodyTooLargeError
	var recordTooLarge *ingest.RecordTooLargeError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &bodyTooLarge), errors.As(err, &recordTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrInvalidJSON),
		errors.Is(err, ingest.ErrMissingData),
		errors.Is(err, ingest.ErrDataNotText),
		errors.Is(err, ingest.ErrInvalidEncoding),
		errors.Is(err, producer.ErrRecordRejected):
		return http.StatusBadRequest
	case errors.Is(err, producer.ErrProducerClosed), errors.Is(err, producer.ErrBufferFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
