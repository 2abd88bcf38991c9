// Package faultmetrics exports catalog fault and event loop statistics as
// Prometheus metrics.
package faultmetrics

import (
	"io"

	"github.com/joeycumines/go-faultcatalog/catalog"
	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "faultcatalog"

// Recorder implements [catalog.Recorder] on a Prometheus registry.
type Recorder struct {
	// FaultsTotal counts faults by scenario, kind and the pathway that
	// observed them
	FaultsTotal *prometheus.CounterVec

	// LoopEvents counts event loop activity per scenario
	LoopEvents *prometheus.CounterVec

	// TaskLatency holds macrotask latency percentiles per scenario
	TaskLatency *prometheus.GaugeVec

	// MaxMicrotaskQueue is the high-water mark of each scenario's microtask queue
	MaxMicrotaskQueue *prometheus.GaugeVec
}

var _ catalog.Recorder = (*Recorder)(nil)

// New registers the catalog metrics with reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		FaultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_total",
				Help:      "Total number of faults observed, by handling pathway",
			},
			[]string{"scenario", "kind", "pathway"},
		),
		LoopEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loop_events_total",
				Help:      "Total number of event loop events",
			},
			[]string{"scenario", "event"},
		),
		TaskLatency: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "loop_task_latency_seconds",
				Help:      "Macrotask latency percentiles, including the microtask drain",
			},
			[]string{"scenario", "quantile"},
		),
		MaxMicrotaskQueue: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "loop_max_microtask_queue_length",
				Help:      "Longest observed microtask queue",
			},
			[]string{"scenario"},
		),
	}
}

// RecordFault counts a fault delivered to pathway.
func (r *Recorder) RecordFault(scenario string, kind fault.Kind, pathway string) {
	r.FaultsTotal.WithLabelValues(scenario, kind.String(), pathway).Inc()
}

// RecordLoop adds a scenario's final loop metrics. A nil m is ignored.
func (r *Recorder) RecordLoop(scenario string, m *eventloop.Metrics) {
	if m == nil {
		return
	}
	for event, n := range map[string]uint64{
		"task":                   m.Tasks,
		"microtask":              m.Microtasks,
		"timer_fired":            m.TimersFired,
		"promise_rejected":       m.PromisesRejected,
		"unhandled_rejection":    m.UnhandledRejections,
		"late_handled_rejection": m.LateHandledRejections,
		"uncaught_fault":         m.UncaughtFaults,
	} {
		r.LoopEvents.WithLabelValues(scenario, event).Add(float64(n))
	}
	for quantile, d := range map[string]float64{
		"0.5":  m.Latency.P50.Seconds(),
		"0.9":  m.Latency.P90.Seconds(),
		"0.99": m.Latency.P99.Seconds(),
		"1":    m.Latency.Max.Seconds(),
	} {
		r.TaskLatency.WithLabelValues(scenario, quantile).Set(d)
	}
	r.MaxMicrotaskQueue.WithLabelValues(scenario).Set(float64(m.MaxMicrotaskQueueLength))
}

// WriteText writes every metric gathered from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
