package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// promObserver adapts a Prometheus collector to an Observer.
type promObserver struct {
	prometheus.Collector
	observe func(val float64, labels []string)
}

func (m *promObserver) Observe(val float64, labels ...string) {
	m.observe(val, labels)
}

// NewPromCounter creates an Observer that adds observed values to a counter.
// Labels are ignored.
func NewPromCounter(m prometheus.Counter) Observer {
	return &promObserver{Collector: m, observe: func(v float64, _ []string) { m.Add(v) }}
}

// NewPromGauge creates an Observer that sets a gauge to the observed value.
func NewPromGauge(m prometheus.Gauge) Observer {
	return &promObserver{Collector: m, observe: func(v float64, _ []string) { m.Set(v) }}
}

// NewPromCounterVec creates an Observer that adds to the counter with the
// observed labels.
func NewPromCounterVec(m *prometheus.CounterVec) Observer {
	return &promObserver{Collector: m, observe: func(v float64, l []string) { m.WithLabelValues(l...).Add(v) }}
}

// NewPromHistogram creates an Observer that records observations in a
// histogram, e.g. latencies in seconds.
func NewPromHistogram(m prometheus.Histogram) Observer {
	return &promObserver{Collector: m, observe: func(v float64, _ []string) { m.Observe(v) }}
}
