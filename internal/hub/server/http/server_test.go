package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(NewRouter(nil, false), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReadyz(t *testing.T) {
	ready := false
	r := NewRouter(func() bool { return ready }, false)

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/readyz").Code)

	ready = true
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/readyz").Code)
}

func TestMetrics(t *testing.T) {
	rec := serve(NewRouter(nil, false), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "roidota_broker_connected")
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(NewRouter(nil, false), http.MethodPost, "/healthz")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProfilingIsOptIn(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, serve(NewRouter(nil, false), http.MethodGet, "/debug/pprof/").Code)
	assert.Equal(t, http.StatusOK, serve(NewRouter(nil, true), http.MethodGet, "/debug/pprof/").Code)
}
