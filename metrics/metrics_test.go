package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/profprotonn/protonbot/metrics"
)

func TestCounterVec(t *testing.T) {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test"}, []string{"action", "result"})
	m := metrics.NewPromCounterVec(v)
	m.Observe(1, "ban", "ok")
	m.Observe(1, "ban", "ok")
	m.Observe(1, "ban", "error")
	if got := testutil.ToFloat64(v.WithLabelValues("ban", "ok")); got != 2 {
		t.Errorf("wrong ok count: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(v.WithLabelValues("ban", "error")); got != 1 {
		t.Errorf("wrong error count: want 1, got %v", got)
	}
}

func TestGauge(t *testing.T) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test"})
	m := metrics.NewPromGauge(g)
	m.Observe(5)
	m.Observe(3)
	if got := testutil.ToFloat64(g); got != 3 {
		t.Errorf("wrong gauge value: want 3, got %v", got)
	}
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range metrics.Nop().Collectors() {
		if c == nil {
			t.Fatal("nil collector")
		}
		if err := reg.Register(c); err != nil {
			t.Errorf("couldn't register: %v", err)
		}
	}
}

func TestHistogram(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test", Buckets: []float64{1, 10}})
	m := metrics.NewPromHistogram(h)
	m.Observe(0.5)
	m.Observe(4)
	if n := testutil.CollectAndCount(m); n != 1 {
		t.Errorf("wrong number of series: %d", n)
	}
}
