// Package metrics exposes Prometheus instrumentation for matching and the
// live channel.
//
// Exposed at /metrics on the HTTP server:
//   - swipecook_decisions_total{positive}
//   - swipecook_matches_created_total
//   - swipecook_match_duplicates_resolved_total
//   - swipecook_match_transitions_total{to}
//   - swipecook_matches_expired_total
//   - swipecook_live_connections
//   - swipecook_live_events_delivered_total{type}
//   - swipecook_live_events_dropped_total{type}
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swipecook"

// Registry owns its own prometheus.Registry so tests can build as many as
// they like.
type Registry struct {
	reg *prometheus.Registry

	Decisions          *prometheus.CounterVec
	MatchesCreated     prometheus.Counter
	DuplicatesResolved prometheus.Counter
	Transitions        *prometheus.CounterVec
	MatchesExpired     prometheus.Counter
	LiveConnections    prometheus.Gauge
	EventsDelivered    *prometheus.CounterVec
	EventsDropped      *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions recorded, by polarity",
		}, []string{"positive"}),
		MatchesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_created_total",
			Help:      "Matches created by the detector",
		}),
		DuplicatesResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_duplicates_resolved_total",
			Help:      "Concurrent creation attempts that resolved to an existing match",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_transitions_total",
			Help:      "Successful match status transitions, by target status",
		}, []string{"to"}),
		MatchesExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_expired_total",
			Help:      "Matches expired by the sweep",
		}),
		LiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open live channel connections on this instance",
		}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_delivered_total",
			Help:      "Events queued to a live connection, by event type",
		}, []string{"type"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_dropped_total",
			Help:      "Events dropped because a connection buffer was full, by event type",
		}, []string{"type"}),
	}
}

// Handler serves this registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the registry to tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveDecision(positive bool) {
	r.Decisions.WithLabelValues(strconv.FormatBool(positive)).Inc()
}
