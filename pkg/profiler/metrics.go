package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	events          *prometheus.CounterVec
	ignoredEvents   prometheus.Counter
	functions       prometheus.Counter
	nativeFunctions prometheus.Counter
	stackDepth      prometheus.Gauge
}

// newEngineMetrics builds the engine self-metrics. A nil registerer yields
// working but unregistered collectors, so the hot path never branches on
// whether metrics were requested.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)
	return &engineMetrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lineprof_events_processed_total",
			Help: "Number of host execution events processed, by event kind",
		}, []string{"kind"}),
		ignoredEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "lineprof_events_ignored_total",
			Help: "Number of line events ignored because no frame was being tracked",
		}),
		functions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lineprof_functions_registered_total",
			Help: "Number of distinct scripted functions registered",
		}),
		nativeFunctions: factory.NewCounter(prometheus.CounterOpts{
			Name: "lineprof_native_functions_registered_total",
			Help: "Number of distinct native callables registered",
		}),
		stackDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lineprof_frame_stack_depth",
			Help: "Current depth of the tracked call stack",
		}),
	}
}
