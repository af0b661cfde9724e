package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "minishop", "")

	first := r.Counter("orders_total", "orders", "outcome")
	second := r.Counter("orders_total", "orders", "outcome")
	first.Add(1, observability.L("outcome", "success"))
	second.Add(2, observability.L("outcome", "success"))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "minishop_orders_total", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.Equal(t, 3.0, families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestHistogramDefaultsBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(reg, "minishop", "http").Histogram("latency_seconds", "latency", nil, "route")
	h.Observe(0.2, observability.L("route", "GET /health"))
	h.Observe(0.4, observability.L("route", "GET /health"))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "minishop_http_latency_seconds", families[0].GetName())
	got := families[0].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), got.GetSampleCount())
	assert.InDelta(t, 0.6, got.GetSampleSum(), 1e-9)
}

func TestStandardCoversEveryKey(t *testing.T) {
	counters, histograms := Standard(New(prometheus.NewRegistry(), "minishop", ""))

	for _, key := range []observability.MetricKey{
		observability.MUsecaseRequests,
		observability.MExternalRequests,
		observability.MHTTPRequests,
		observability.MReservationsSwept,
		observability.MEventsDispatched,
	} {
		assert.Contains(t, counters, key)
	}
	for _, key := range []observability.MetricKey{
		observability.MUsecaseDuration,
		observability.MExternalRequestDuration,
		observability.MHTTPRequestDuration,
	} {
		assert.Contains(t, histograms, key)
	}
}
