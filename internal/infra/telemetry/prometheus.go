package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolgate/internal/domain"
)

type PrometheusMetrics struct {
	invokeDuration  *prometheus.HistogramVec
	searchDuration  prometheus.Histogram
	searchHits      prometheus.Histogram
	loads           *prometheus.CounterVec
	registeredTools prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		invokeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_invoke_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend_kind", "status"},
		),
		searchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolgate_search_duration_seconds",
				Help:    "Duration of ranked index searches in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		searchHits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toolgate_search_hits",
				Help:    "Number of hits returned per ranked search",
				Buckets: []float64{0, 1, 2, 5, 10, 15, 25, 50},
			},
		),
		loads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_loads_total",
				Help: "Total layered-loading requests by strategy",
			},
			[]string{"strategy"},
		),
		registeredTools: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_registered_tools",
				Help: "Current number of registered tools",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveInvoke(kind domain.BackendKind, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	label := string(kind)
	if label == "" {
		label = "unresolved"
	}
	p.invokeDuration.WithLabelValues(label, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveSearch(duration time.Duration, hits int) {
	p.searchDuration.Observe(duration.Seconds())
	p.searchHits.Observe(float64(hits))
}

func (p *PrometheusMetrics) ObserveLoad(strategy domain.LoadStrategy) {
	p.loads.WithLabelValues(string(strategy)).Inc()
}

func (p *PrometheusMetrics) SetRegisteredTools(count int) {
	p.registeredTools.Set(float64(count))
}
