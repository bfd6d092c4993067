// Package metrics defines the bot's observable counters and latencies.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Observer records a value with label values in the order the underlying
// metric declares them. It is also the Prometheus collector to register.
type Observer interface {
	Observe(val float64, labels ...string)
	prometheus.Collector
}

// Metrics are the bot's observers.
type Metrics struct {
	// TMIMsgsCount counts chat messages received.
	TMIMsgsCount Observer
	// TMICommandCount counts IRC commands received, labeled by command.
	TMICommandCount Observer
	// ReplyCount counts replies sent, labeled by handling path.
	ReplyCount Observer
	// ModerationCount counts moderation actions, labeled by action and
	// result.
	ModerationCount Observer
	// CompletionLatency observes text completion time in seconds.
	CompletionLatency Observer
	// RefreshCount counts credential refreshes, labeled by result.
	RefreshCount Observer
	// APICount counts command API requests, labeled by route and status.
	APICount Observer
	// JoinedChannels is the number of channels currently joined.
	JoinedChannels Observer
}

// Collectors lists every observer for registration.
func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TMIMsgsCount,
		m.TMICommandCount,
		m.ReplyCount,
		m.ModerationCount,
		m.CompletionLatency,
		m.RefreshCount,
		m.APICount,
		m.JoinedChannels,
	}
}

// Nop returns a Metrics whose observers record into unregistered
// collectors. It is meant for tests.
func Nop() Metrics {
	counter := func(name string, labels ...string) Observer {
		return NewPromCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels))
	}
	return Metrics{
		TMIMsgsCount:      NewPromCounter(prometheus.NewCounter(prometheus.CounterOpts{Name: "msgs"})),
		TMICommandCount:   counter("cmds", "command"),
		ReplyCount:        counter("replies", "kind"),
		ModerationCount:   counter("moderation", "action", "result"),
		CompletionLatency: NewPromHistogram(prometheus.NewHistogram(prometheus.HistogramOpts{Name: "completion"})),
		RefreshCount:      counter("refresh", "result"),
		APICount:          counter("api", "route", "status"),
		JoinedChannels:    NewPromGauge(prometheus.NewGauge(prometheus.GaugeOpts{Name: "joined"})),
	}
}
