package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/quayside/berthd/core/metrics"
)

// PromSink records scheduling events in Prometheus metrics.
type PromSink struct {
	solves      *prometheus.CounterVec
	solveTime   *prometheus.HistogramVec
	conflicts   *prometheus.CounterVec
	suggestions *prometheus.HistogramVec
	occupancy   *prometheus.GaugeVec
	version     prometheus.Gauge
}

// NewPromSink registers scheduling metrics on the default Prometheus
// registerer. The scrape endpoint is started separately via Serve.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "berth_solve_runs_total",
		Help: "Total number of optimizer runs",
	}, []string{"trigger", "escalated", "partial"})
	solveTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "berth_solve_duration_seconds",
		Help:    "Wall-clock duration of optimizer runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "berth_conflicts_total",
		Help: "Conflict transitions by kind and severity",
	}, []string{"kind", "severity", "transition"})
	suggestions := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "berth_suggestion_latency_seconds",
		Help:    "Latency of berth suggestion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	occupancy := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "berth_occupancy_fraction",
		Help: "Scheduled berth utilisation over the reporting horizon",
	}, []string{"berth_id"})
	version := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "berth_schedule_version",
		Help: "Version of the current schedule snapshot",
	})

	if err := reg.Register(solves); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			solves = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(solveTime); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			solveTime = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(conflicts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			conflicts = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(suggestions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			suggestions = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(occupancy); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			occupancy = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(version); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			version = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		solves:      solves,
		solveTime:   solveTime,
		conflicts:   conflicts,
		suggestions: suggestions,
		occupancy:   occupancy,
		version:     version,
	}, nil
}

// RecordSolve increments the run counter and observes the duration.
func (s *PromSink) RecordSolve(recs []coremetrics.SolveRecord) error {
	for _, r := range recs {
		s.solves.WithLabelValues(r.Trigger,
			strconv.FormatBool(r.Escalated), strconv.FormatBool(r.Partial)).Inc()
		s.solveTime.WithLabelValues(r.Trigger).Observe(r.Duration.Seconds())
	}
	return nil
}

// RecordConflicts counts conflict transitions.
func (s *PromSink) RecordConflicts(ts []coremetrics.ConflictTransition) error {
	for _, t := range ts {
		transition := "closed"
		if t.Opened {
			transition = "opened"
		}
		s.conflicts.WithLabelValues(t.Kind, strconv.Itoa(t.Severity), transition).Inc()
	}
	return nil
}

// RecordSuggestion observes the request latency.
func (s *PromSink) RecordSuggestion(rec coremetrics.SuggestionRecord) error {
	outcome := "candidates"
	if rec.Candidates == 0 {
		outcome = "infeasible"
	}
	s.suggestions.WithLabelValues(outcome).Observe(rec.Latency.Seconds())
	return nil
}

// RecordOccupancy sets per-berth utilisation gauges.
func (s *PromSink) RecordOccupancy(recs []coremetrics.OccupancyRecord) error {
	for _, r := range recs {
		s.occupancy.WithLabelValues(r.BerthID).Set(r.Fraction)
	}
	return nil
}

// RecordCommit tracks the current snapshot version.
func (s *PromSink) RecordCommit(version uint64, _ int) error {
	s.version.Set(float64(version))
	return nil
}

// Serve exposes the registry on /metrics. Blocks until the server stops.
func Serve(port int, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
