package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgedash"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	refreshDuration *prom.HistogramVec
	refreshResults  *prom.CounterVec
	failureKinds    *prom.CounterVec
	toasts          *prom.CounterVec
	activeToasts    prom.Gauge
}

// NewPrometheusRecorder constructs the dashboard metrics and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		refreshDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of resource refreshes from request to applied state",
			Buckets:   prom.DefBuckets,
		}, []string{"resource", "outcome"}),
		refreshResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_results_total",
			Help:      "Resource refresh results by outcome",
		}, []string{"resource", "outcome"}),
		failureKinds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_failures_total",
			Help:      "Resource refresh failures by kind (transport, status, parse)",
		}, []string{"resource", "kind"}),
		toasts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "toasts_total",
			Help:      "Toasts enqueued by category",
		}, []string{"category"}),
		activeToasts: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "toasts_active",
			Help:      "Toasts currently visible",
		}),
	}
	reg.MustRegister(pr.refreshDuration, pr.refreshResults, pr.failureKinds, pr.toasts, pr.activeToasts)
	return pr
}

func (p *PrometheusRecorder) ObserveRefresh(resource, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.refreshDuration.WithLabelValues(resource, outcome).Observe(d.Seconds())
	p.refreshResults.WithLabelValues(resource, outcome).Inc()
}

func (p *PrometheusRecorder) IncFailureKind(resource, kind string) {
	if p == nil {
		return
	}
	p.failureKinds.WithLabelValues(resource, kind).Inc()
}

func (p *PrometheusRecorder) IncToast(category string) {
	if p == nil {
		return
	}
	p.toasts.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) SetActiveToasts(n int) {
	if p == nil {
		return
	}
	p.activeToasts.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
