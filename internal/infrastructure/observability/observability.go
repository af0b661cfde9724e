package observability

import (
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

// Provider is the concrete Observability handed to every service.
type Provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics instruments
}

// New assembles a Provider from a tracer, a logger and keyed metric instruments.
// Nil arguments and unknown metric keys resolve to no-ops.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) *Provider {
	p := &Provider{
		tracer: tracer,
		logger: logger,
		metrics: instruments{
			counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
			histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
		},
	}
	if p.tracer == nil {
		p.tracer = observability.NopTracer()
	}
	if p.logger == nil {
		p.logger = observability.NopLogger()
	}
	for k, c := range counters {
		if c != nil {
			p.metrics.counters[k] = c
		}
	}
	for k, h := range histograms {
		if h != nil {
			p.metrics.histograms[k] = h
		}
	}
	return p
}

func (p *Provider) Tracer() observability.Tracer   { return p.tracer }
func (p *Provider) Logger() observability.Logger   { return p.logger }
func (p *Provider) Metrics() observability.Metrics { return p.metrics }

type instruments struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m instruments) Counter(key observability.MetricKey) observability.Counter {
	if c, ok := m.counters[key]; ok {
		return c
	}
	return observability.NopCounter()
}

func (m instruments) Histogram(key observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[key]; ok {
		return h
	}
	return observability.NopHistogram()
}
