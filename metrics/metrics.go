// Package metrics exports machine events as Prometheus metrics.
package metrics

import (
	"github.com/benbjohnson/dse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dse"

// Outcome labels of the states_terminated_total counter.
const (
	OutcomeReachable   = "reachable"
	OutcomeUnreachable = "unreachable"
	OutcomeException   = "exception"
)

// Observer is a dse.Observer updating Prometheus metrics. Prometheus
// collectors are safe for concurrent use so workers may share it.
type Observer[M, S comparable] struct {
	// StepsTotal counts interpreter steps.
	StepsTotal prometheus.Counter

	// ForksTotal counts states forked by steps.
	ForksTotal prometheus.Counter

	// StatesTerminatedTotal counts states leaving the exploration.
	// Labels: outcome (reachable, unreachable, exception)
	StatesTerminatedTotal *prometheus.CounterVec

	// TargetsReachedTotal counts terminal targets reached.
	TargetsReachedTotal prometheus.Counter

	// CoveragePercent is the coverage of the current run.
	CoveragePercent prometheus.Gauge

	// RunsTotal counts runs started.
	RunsTotal prometheus.Counter

	// RunsStoppedTotal counts runs whose machine loop exited.
	RunsStoppedTotal prometheus.Counter

	run *dse.Run[M, S]
}

var _ dse.RunObserver[int, int] = (*Observer[int, int])(nil)

// NewObserver registers the metrics with reg and returns the observer.
func NewObserver[M, S comparable](reg prometheus.Registerer) *Observer[M, S] {
	f := promauto.With(reg)
	return &Observer[M, S]{
		StepsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total interpreter steps",
		}),
		ForksTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forks_total",
			Help:      "Total states forked by interpreter steps",
		}),
		StatesTerminatedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_terminated_total",
			Help:      "Total states leaving the exploration by outcome",
		}, []string{"outcome"}),
		TargetsReachedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_reached_total",
			Help:      "Total terminal targets reached",
		}),
		CoveragePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_percent",
			Help:      "Statement coverage of the current run",
		}),
		RunsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total runs started",
		}),
		RunsStoppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_stopped_total",
			Help:      "Total runs whose exploration loop exited",
		}),
	}
}

// OnRunStarted binds the observer to run. Coverage is read from it as
// states terminate.
func (o *Observer[M, S]) OnRunStarted(run *dse.Run[M, S]) {
	o.run = run
	o.CoveragePercent.Set(run.Coverage.Percent())
	o.RunsTotal.Inc()
}

func (o *Observer[M, S]) OnState(parent *dse.State[M, S], forks []*dse.State[M, S]) {
	o.StepsTotal.Inc()
	o.ForksTotal.Add(float64(len(forks)))
}

func (o *Observer[M, S]) OnStateTerminated(state *dse.State[M, S], reachable bool) {
	switch {
	case !reachable:
		o.StatesTerminatedTotal.WithLabelValues(OutcomeUnreachable).Inc()
	case state.IsExceptional():
		o.StatesTerminatedTotal.WithLabelValues(OutcomeException).Inc()
	default:
		o.StatesTerminatedTotal.WithLabelValues(OutcomeReachable).Inc()
	}

	if o.run != nil {
		o.CoveragePercent.Set(o.run.Coverage.Percent())
	}
}

func (o *Observer[M, S]) OnTargetReached(state *dse.State[M, S], target *dse.Target[M, S]) {
	o.TargetsReachedTotal.Inc()
}

func (o *Observer[M, S]) OnMachineStopped() {
	if o.run != nil {
		o.CoveragePercent.Set(o.run.Coverage.Percent())
	}
	o.RunsStoppedTotal.Inc()
}
