package microservice_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-queueconnector/pkg/microservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseServer_Endpoints(t *testing.T) {
	// --- Arrange ---
	var ready atomic.Bool
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_polls_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := microservice.NewBaseServer(zerolog.Nop(), ":0", ready.Load, reg)

	get := func(path string) (int, string) {
		rec := httptest.NewRecorder()
		s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code, rec.Body.String()
	}

	// --- Act & Assert ---
	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ready.Store(true)
	code, body = get("/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "READY", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "test_polls_total 1")
}

func TestBaseServer_NoMetricsWithoutGatherer(t *testing.T) {
	s := microservice.NewBaseServer(zerolog.Nop(), ":0", nil, nil)

	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "no readiness check means always ready")
}

func TestBaseServer_StartAndShutdown(t *testing.T) {
	// --- Arrange ---
	s := microservice.NewBaseServer(zerolog.Nop(), "127.0.0.1:0", nil, nil)
	require.NoError(t, s.Start())

	// --- Act ---
	resp, err := http.Get("http://127.0.0.1" + s.GetHTTPPort() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	// --- Assert ---
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
	assert.NotEqual(t, ":0", s.GetHTTPPort())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}
