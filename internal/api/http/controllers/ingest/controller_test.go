package ingest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopl-dev/stream-forwarder/internal/ingest"
	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

type call struct {
	stream, key string
	data        []byte
}

type fakeProducer struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeProducer) Submit(stream, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, call{stream: stream, key: key, data: data})
	return nil
}

func (f *fakeProducer) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newRouter(p ingest.Submitter, maxBody, maxRecord int64) *gin.Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	in := ingest.NewIngestor(ingest.NewValidator(ingest.ValidatorConfig{MaxRecordBytes: maxRecord}), p, "orders-stream", log)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(in, maxBody, log).RegisterRoutes(r)
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSubmit_HelloReachesProducer(t *testing.T) {
	p := &fakeProducer{}
	r := newRouter(p, 1024, 1024)

	w := post(r, `{"data":"hello"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	calls := p.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "orders-stream", calls[0].stream)
	assert.Equal(t, []byte("hello"), calls[0].data)
	key, err := uuid.Parse(calls[0].key)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), key.Version())
}

func TestSubmit_IdenticalPayloadsGetDistinctKeys(t *testing.T) {
	p := &fakeProducer{}
	r := newRouter(p, 1024, 1024)

	post(r, `{"data":"same"}`)
	post(r, `{"data":"same"}`)

	calls := p.snapshot()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].key, calls[1].key)
}

func TestSubmit_BadRequests(t *testing.T) {
	cases := map[string]struct {
		body string
		want int
	}{
		"malformed json":     {`{"data":`, http.StatusBadRequest},
		"not an object":      {`["hello"]`, http.StatusBadRequest},
		"missing data":       {`{"payload":"x"}`, http.StatusBadRequest},
		"null data":          {`{"data":null}`, http.StatusBadRequest},
		"numeric data":       {`{"data":42}`, http.StatusBadRequest},
		"invalid utf-8":      {"{\"data\":\"\xff\"}", http.StatusBadRequest},
		"unpaired surrogate": {`{"data":"\ud800"}`, http.StatusBadRequest},
		"record too large":   {`{"data":"` + strings.Repeat("x", 65) + `"}`, http.StatusRequestEntityTooLarge},
		"body too large":     {`{"data":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := &fakeProducer{}
			r := newRouter(p, 128, 64)

			w := post(r, tc.body)

			assert.Equal(t, tc.want, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Empty(t, p.snapshot())
		})
	}
}

func TestSubmit_ProducerErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"closed":      {producer.ErrProducerClosed, http.StatusServiceUnavailable},
		"buffer full": {fmt.Errorf("%w: no room in backlog after 1s", producer.ErrBufferFull), http.StatusServiceUnavailable},
		"rejected":    {fmt.Errorf("%w: too big", producer.ErrRecordRejected), http.StatusBadRequest},
		"other":       {errors.New("connection reset"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := newRouter(&fakeProducer{err: tc.err}, 1024, 1024)

			assert.Equal(t, tc.want, post(r, `{"data":"hello"}`).Code)
		})
	}
}

func TestSubmit_ConcurrentRequests(t *testing.T) {
	p := &fakeProducer{}
	r := newRouter(p, 1024, 1024)

	var wg sync.WaitGroup
	codes := make([]int, 100)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = post(r, fmt.Sprintf(`{"data":"msg-%d"}`, i)).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}
	keys := map[string]bool{}
	for _, c := range p.snapshot() {
		keys[c.key] = true
	}
	assert.Len(t, keys, 100)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&ingest.BodyTooLargeError{Max: 1}, http.StatusRequestEntityTooLarge},
		{&ingest.RecordTooLargeError{Size: 2, Max: 1}, http.StatusRequestEntityTooLarge},
		{ingest.ErrInvalidJSON, http.StatusBadRequest},
		{ingest.ErrMissingData, http.StatusBadRequest},
		{ingest.ErrDataNotText, http.StatusBadRequest},
		{ingest.ErrInvalidEncoding, http.StatusBadRequest},
		{fmt.Errorf("submit to orders-stream: %w", producer.ErrProducerClosed), http.StatusServiceUnavailable},
		{fmt.Errorf("submit to orders-stream: %w", producer.ErrBufferFull), http.StatusServiceUnavailable},
		{producer.ErrUnknownStream, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "StatusFor(%v)", tc.err)
	}
}
