package pipeline

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the pipeline's Prometheus instrumentation. Registration
// happens once per process; a Driver built without a registerer keeps a
// nil *metrics and skips every update, so metrics stay opt-in. The driver
// never sets nscacheSize, so that gauge always reads 0.
type metrics struct {
	ordersSubmitted prometheus.Counter
	ordersCompleted prometheus.Counter
	pipelineErrors  prometheus.Counter
	nscacheSize     prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		ordersSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "netmirage_orders_submitted_total",
			Help: "Work orders submitted to the pipeline.",
		}),
		ordersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "netmirage_orders_completed_total",
			Help: "Work orders acknowledged by a worker.",
		}),
		pipelineErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "netmirage_pipeline_errors_total",
			Help: "Errors latched by the pipeline driver.",
		}),
		nscacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "netmirage_nscache_size",
			Help: "Current number of entries in a worker's namespace context cache.",
		}),
	}
}

// ServeMetrics starts an HTTP listener exposing the registered metrics at
// /metrics. Intended for operators who pass a listen address; callers that
// don't want metrics simply never call this.
func ServeMetrics(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
