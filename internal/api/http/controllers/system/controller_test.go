package system

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/dopl-dev/stream-forwarder/internal/health"
	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

type stubProducer struct{ open bool }

func (s stubProducer) Stats() producer.Stats { return producer.Stats{Open: s.open} }

func router(open bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(health.New(stubProducer{open: open}, nil)).RegisterRoutes(r)
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthcheck_EmptyOKEvenWhenProducerClosed(t *testing.T) {
	w := get(router(false), "/healthcheck")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestReady_ReflectsProducer(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(router(true), "/ready").Code)

	w := get(router(false), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"fail","checks":[{"name":"producer","status":"fail","message":"producer closed"}]}`, w.Body.String())
}

func TestMetrics_ServesForwarderCounters(t *testing.T) {
	w := get(router(true), "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
