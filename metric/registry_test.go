package metric

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_ops_total",
		Help: "test counter",
	}, []string{"op"})

	require.NoError(t, registry.Register("svc", "ops", vec))
	err := registry.Register("svc", "ops", vec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	assert.True(t, registry.Unregister("svc", "ops"))
	assert.False(t, registry.Unregister("svc", "ops"))
}

func TestMetricsRegistry_CoreMetricsGathered(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RepliesPublished.WithLabelValues("hash", "COMPLETE").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "gytheio_dispatch_replies_published_total" {
			found = mf
		}
	}
	require.NotNil(t, found)
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, 1.0, found.GetMetric()[0].GetCounter().GetValue())
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	srv := NewServer(0, registry, func() (bool, any) {
		return false, map[string]string{"status": "unhealthy"}
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body["status"])

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	data, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "go_goroutines"))
}

func TestServer_StartStop(t *testing.T) {
	srv := NewServer(0, NewMetricsRegistry(), nil)
	require.NoError(t, srv.Start())
	assert.NotEmpty(t, srv.Addr())
	assert.Error(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.Empty(t, srv.Addr())
	assert.NoError(t, srv.Stop(ctx))
}

func TestMetricsRegistry_RegisterOrGet(t *testing.T) {
	registry := NewMetricsRegistry()
	newVec := func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "shared_ops_total", Help: "shared"}, []string{"op"})
	}

	first := newVec()
	got, err := registry.RegisterOrGet("bucket", "ops", first)
	require.NoError(t, err)
	assert.Same(t, first, got)

	got, err = registry.RegisterOrGet("bucket", "ops", newVec())
	require.NoError(t, err)
	assert.Same(t, first, got, "second owner instance reuses the collector")

	_, err = registry.RegisterOrGet("other", "ops", newVec())
	assert.Error(t, err, "same metric name under another owner conflicts in prometheus")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_LogsServeFailure(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	srv := NewServer(0, NewMetricsRegistry(), nil, WithServerLogger(logger))
	require.NoError(t, srv.Start())

	srv.mu.Lock()
	ln := srv.listener
	srv.mu.Unlock()
	require.NoError(t, ln.Close())

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "HTTP server stopped unexpectedly")
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func TestServer_GracefulStopNotLogged(t *testing.T) {
	var out syncBuffer
	srv := NewServer(0, NewMetricsRegistry(), nil, WithServerLogger(slog.New(slog.NewTextHandler(&out, nil))))
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, out.String(), "stopped unexpectedly")
}
