package ingest

import (
	"fmt"
	"unicode/utf8"
)

// ValidatorConfig holds the limits applied to each submission.
type ValidatorConfig struct {
	MaxRecordBytes int64
	// KeyBytes is added to the data length before comparing against
	// MaxRecordBytes, for backends that count the partition key toward the
	// record size.
	KeyBytes int64
}

// Validator checks decoded submissions before they are keyed and handed off.
type Validator struct {
	cfg ValidatorConfig
}

// ValidationResult is the outcome of validating a single Submission.
type ValidationResult struct {
	OK     bool
	Reason string
	Err    error
}

func ok() ValidationResult {
	return ValidationResult{OK: true}
}

func fail(err error) ValidationResult {
	return ValidationResult{OK: false, Reason: Reason(err), Err: err}
}

// NewValidator constructs a Validator from the given config.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate checks s against the configured rules. Submissions built in code
// rather than by DecodeSubmission get the same UTF-8 check here.
func (v *Validator) Validate(s *Submission) ValidationResult {
	if !utf8.ValidString(s.Data) {
		return fail(fmt.Errorf("%w: data contains invalid UTF-8", ErrInvalidEncoding))
	}

	size := int64(len(s.Data)) + v.cfg.KeyBytes
	if v.cfg.MaxRecordBytes > 0 && size > v.cfg.MaxRecordBytes {
		return fail(&RecordTooLargeError{Size: int(size), Max: v.cfg.MaxRecordBytes})
	}

	return ok()
}
