package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRegistry_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ctx := context.Background()

	r, err := NewRegistryWithProvider(mp, "test")
	require.NoError(t, err)

	r.RecordChannel(ctx, risk.ChannelVoice, 250*time.Millisecond, true)
	r.RecordChannel(ctx, risk.ChannelVideo, 10*time.Millisecond, false)
	r.RecordDecision(ctx, "detect", 0.9, true)
	r.RecordDecision(ctx, "detect", 0.2, false)
	r.RecordTranscriptionPolls(ctx, 4, "completed")
	done := r.TrackRequest()

	got := collect(t, reader)

	degraded, ok := got["deepguard.channel.degraded_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, degraded.DataPoints, 1)
	assert.Equal(t, int64(1), degraded.DataPoints[0].Value)

	fraud, ok := got["deepguard.decision.fraud_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), fraud.DataPoints[0].Value)

	polls, ok := got["deepguard.transcription.polls"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	assert.Equal(t, int64(4), polls.DataPoints[0].Sum)

	inflight, ok := got["deepguard.requests.in_flight"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), inflight.DataPoints[0].Value)

	done()
	got = collect(t, reader)
	inflight = got["deepguard.requests.in_flight"].Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(0), inflight.DataPoints[0].Value)
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	h := m.Middleware("detect", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/detect", nil))
	m.ObserveUpload("video", 1024)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "detect", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "deepguard_api_http_requests_total")
	assert.Contains(t, string(body), "deepguard_api_upload_bytes")
}
