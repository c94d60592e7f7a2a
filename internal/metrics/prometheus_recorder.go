package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildmesh"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	cycleDuration   prom.Histogram
	cycleErrors     prom.Counter
	itemOutcomes    *prom.CounterVec
	itemDuration    *prom.HistogramVec
	backpressure    *prom.CounterVec
	processing      prom.Gauge
	lanes           prom.Gauge
	leader          prom.Gauge
	interProjectFin *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.cycleDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one admission cycle",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		})
		pr.cycleErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_errors_total",
			Help:      "Admission cycles aborted by an error",
		})
		pr.itemOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "item_outcomes_total",
			Help:      "Queue item attempts by event type and outcome",
		}, []string{"event_type", "outcome"})
		pr.itemDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "item_duration_seconds",
			Help:      "Time spent dispatching one queue item",
			Buckets:   prom.DefBuckets,
		}, []string{"event_type"})
		pr.backpressure = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "backpressure_deferrals_total",
			Help:      "Cycles that stopped admitting at an item because no cluster was healthy",
		}, []string{"event_type"})
		pr.processing = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "processing_items",
			Help:      "Items handed to a lane and not yet finished",
		})
		pr.lanes = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lanes",
			Help:      "Event-type lanes created so far",
		})
		pr.leader = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "leader",
			Help:      "1 when this instance holds the scheduler lease",
		})
		pr.interProjectFin = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Subsystem: "interproject",
			Name:      "finalized_total",
			Help:      "Inter-project builds finalized by end state",
		}, []string{"state"})
		reg.MustRegister(pr.cycleDuration, pr.cycleErrors, pr.itemOutcomes, pr.itemDuration,
			pr.backpressure, pr.processing, pr.lanes, pr.leader, pr.interProjectFin)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveCycleDuration(d time.Duration) {
	if p == nil || p.cycleDuration == nil {
		return
	}
	p.cycleDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCycleError() {
	if p == nil || p.cycleErrors == nil {
		return
	}
	p.cycleErrors.Inc()
}

func (p *PrometheusRecorder) IncItemOutcome(eventType string, outcome ItemOutcome) {
	if p == nil || p.itemOutcomes == nil {
		return
	}
	p.itemOutcomes.WithLabelValues(eventType, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveItemDuration(eventType string, d time.Duration) {
	if p == nil || p.itemDuration == nil {
		return
	}
	p.itemDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBackpressureDeferral(eventType string) {
	if p == nil || p.backpressure == nil {
		return
	}
	p.backpressure.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) SetProcessing(n int) {
	if p == nil || p.processing == nil {
		return
	}
	p.processing.Set(float64(n))
}

func (p *PrometheusRecorder) SetLanes(n int) {
	if p == nil || p.lanes == nil {
		return
	}
	p.lanes.Set(float64(n))
}

func (p *PrometheusRecorder) SetLeader(leader bool) {
	if p == nil || p.leader == nil {
		return
	}
	v := 0.0
	if leader {
		v = 1
	}
	p.leader.Set(v)
}

func (p *PrometheusRecorder) IncInterProjectFinalized(state string) {
	if p == nil || p.interProjectFin == nil {
		return
	}
	p.interProjectFin.WithLabelValues(state).Inc()
}
