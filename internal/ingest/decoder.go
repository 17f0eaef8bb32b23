package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"
)

// DecodeSubmission decodes a Submission from r. The body must be valid UTF-8
// holding a JSON object whose "data" member is a string.
func DecodeSubmission(r io.Reader) (Submission, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Submission{}, err
	}
	if !utf8.Valid(body) {
		return Submission{}, ErrInvalidEncoding
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Submission{}, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}

	raw, ok := fields["data"]
	if !ok || string(raw) == "null" {
		return Submission{}, ErrMissingData
	}
	if len(raw) == 0 || raw[0] != '"' {
		return Submission{}, ErrDataNotText
	}
	if hasUnpairedSurrogate(raw) {
		return Submission{}, ErrInvalidEncoding
	}

	var data string
	if err := json.Unmarshal(raw, &data); err != nil {
		return Submission{}, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}
	return Submission{Data: data}, nil
}

// DecodeSubmissionFromHTTP reads and decodes a Submission from an HTTP request,
// enforcing maxBodyBytes. Returns BodyTooLargeError if the body exceeds the limit.
func DecodeSubmissionFromHTTP(r *http.Request, w http.ResponseWriter, maxBodyBytes int64) (Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	sub, err := DecodeSubmission(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return Submission{}, &BodyTooLargeError{Max: maxBodyBytes}
		}
		return Submission{}, err
	}
	return sub, nil
}

// hasUnpairedSurrogate scans a JSON string literal for \uXXXX escapes that
// encode half of a UTF-16 surrogate pair. encoding/json silently replaces
// those with U+FFFD; they have no UTF-8 form, so they are rejected instead.
// raw must already be syntactically valid JSON.
func hasUnpairedSurrogate(raw []byte) bool {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			continue
		}
		if raw[i+1] != 'u' {
			i++ // skip the escaped character, which may itself be a backslash
			continue
		}
		r, ok := escapedRune(raw, i)
		if !ok {
			return false
		}
		switch {
		case r >= 0xDC00 && r <= 0xDFFF:
			return true
		case r >= 0xD800 && r <= 0xDBFF:
			low, ok := escapedRune(raw, i+6)
			if !ok || low < 0xDC00 || low > 0xDFFF {
				return true
			}
			i += 11
		default:
			i += 5
		}
	}
	return false
}

// escapedRune decodes the \uXXXX escape starting at raw[i].
func escapedRune(raw []byte, i int) (rune, bool) {
	if i+6 > len(raw) || raw[i] != '\\' || raw[i+1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(raw[i+2:i+6]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
