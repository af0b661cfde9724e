package prometrics

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry hands out label-partitioned instruments backed by Prometheus vectors.
type Registry interface {
	Counter(name, help string, labelKeys ...string) observability.Counter
	Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New registers collectors on reg; a nil reg means prometheus.DefaultRegisterer.
// Asking twice for the same name returns the vector registered first.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (r *registry) Counter(name, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      help,
		}, labelKeys)
		r.reg.MustRegister(vec)
		r.counters[name] = vec
	}
	return counterVec{vec}
}

func (r *registry) Histogram(name, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	vec, ok := r.histograms[name]
	if !ok {
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Subsystem: r.subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labelKeys)
		r.reg.MustRegister(vec)
		r.histograms[name] = vec
	}
	return histogramVec{vec}
}

type counterVec struct{ *prometheus.CounterVec }

func (c counterVec) Add(delta float64, labels ...observability.Label) {
	c.With(toLabels(labels)).Add(delta)
}

type histogramVec struct{ *prometheus.HistogramVec }

func (h histogramVec) Observe(value float64, labels ...observability.Label) {
	h.With(toLabels(labels)).Observe(value)
}

func toLabels(ls []observability.Label) prometheus.Labels {
	out := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		out[l.Key] = l.Value
	}
	return out
}

type counterDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

type histogramDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

var standardCounters = []counterDef{
	{observability.MUsecaseRequests, "Total number of use case invocations.", []string{"use_case", "outcome"}},
	{observability.MExternalRequests, "Total number of calls to external peers.", []string{"peer", "endpoint", "outcome"}},
	{observability.MHTTPRequests, "Total number of HTTP requests.", []string{"method", "route", "status"}},
	{observability.MReservationsSwept, "Expired stock reservations released by the sweeper.", nil},
	{observability.MEventsDispatched, "Domain events delivered to bus handlers.", []string{"event", "outcome"}},
}

var standardHistograms = []histogramDef{
	{observability.MUsecaseDuration, "Duration of use case execution in seconds.", []string{"use_case"}},
	{observability.MExternalRequestDuration, "Duration of calls to external peers in seconds.", []string{"peer", "endpoint"}},
	{observability.MHTTPRequestDuration, "HTTP request latency in seconds.", []string{"method", "route", "status"}},
}

// Standard registers every instrument the service emits and returns them keyed for observability.New.
func Standard(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := make(map[observability.MetricKey]observability.Counter, len(standardCounters))
	for _, d := range standardCounters {
		counters[d.key] = r.Counter(string(d.key), d.help, d.labels...)
	}
	histograms := make(map[observability.MetricKey]observability.Histogram, len(standardHistograms))
	for _, d := range standardHistograms {
		histograms[d.key] = r.Histogram(string(d.key), d.help, nil, d.labels...)
	}
	return counters, histograms
}
