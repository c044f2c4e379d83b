// Package metrics 定义服务端暴露的 Prometheus 指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

// Metrics 是一组注册在同一个 Registry 上的指标。
type Metrics struct {
	reg *prometheus.Registry

	FilterEvaluations *prometheus.CounterVec
	VisibleCards      prometheus.Histogram
	EventsReported    *prometheus.CounterVec
	EventsRejected    *prometheus.CounterVec
	PageRenders       *prometheus.CounterVec
	RenderDuration    prometheus.Histogram
}

// New 在新的 Registry 上创建全部指标（同时注册 Go/进程采集器）。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		FilterEvaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bmcompare_filter_evaluations_total",
				Help: "Filter evaluation passes, by active dimension.",
			},
			[]string{"dimension"},
		),
		VisibleCards: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bmcompare_visible_cards",
			Help:    "Visible card count after a filter evaluation pass.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		EventsReported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bmcompare_events_reported_total",
				Help: "Analytics events accepted, by event name.",
			},
			[]string{"event"},
		),
		EventsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bmcompare_events_rejected_total",
				Help: "Analytics events rejected, by reason.",
			},
			[]string{"reason"},
		),
		PageRenders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bmcompare_page_renders_total",
				Help: "Server-side page renders, by cache outcome.",
			},
			[]string{"cache"},
		),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bmcompare_render_duration_seconds",
			Help:    "Duration of server-side page renders.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Registry 返回底层 Registry（测试用于读取指标）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveSelection 记录一次评估：无筛选时记为 "none"。
func (m *Metrics) ObserveSelection(sel domain.Selection, visible int) {
	if m == nil {
		return
	}
	if sel.Len() == 0 {
		m.FilterEvaluations.WithLabelValues("none").Inc()
	}
	for _, d := range domain.Dimensions {
		if _, ok := sel.Dimension(d); ok {
			m.FilterEvaluations.WithLabelValues(string(d)).Inc()
		}
	}
	m.VisibleCards.Observe(float64(visible))
}
