package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/stretchr/testify/assert"
)

type recordingCounter struct{ total float64 }

func (c *recordingCounter) Add(delta float64, _ ...observability.Label) { c.total += delta }

func TestNewFallsBackToNops(t *testing.T) {
	p := New(nil, nil, nil, nil)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Logger())
	assert.NotPanics(t, func() {
		p.Metrics().Counter(observability.MHTTPRequests).Add(1)
		p.Metrics().Histogram(observability.MHTTPRequestDuration).Observe(0.1)
	})
}

func TestMetricsResolveByKey(t *testing.T) {
	c := &recordingCounter{}
	p := New(nil, nil, map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: c,
		observability.MHTTPRequests:    nil,
	}, nil)

	p.Metrics().Counter(observability.MUsecaseRequests).Add(2)
	p.Metrics().Counter(observability.MHTTPRequests).Add(5)

	assert.Equal(t, 2.0, c.total)
	assert.Equal(t, observability.NopCounter(), p.Metrics().Counter(observability.MHTTPRequests))
}
