// metrics — Prometheus-метрики выборки; отдаются на /metrics
// служебного сервера.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched — страниц таймлайна, запрошенных у источника.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_pages_fetched_total",
		Help: "Timeline pages requested from the source.",
	})

	// EntriesExamined — записей таймлайна, рассмотренных агрегатором.
	EntriesExamined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_entries_examined_total",
		Help: "Timeline entries examined by the aggregator.",
	})

	// PostsAccepted — постов, принятых в выдачу.
	PostsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gallery_posts_accepted_total",
		Help: "Posts accepted into results.",
	})

	// SourceErrors — ошибок источника по видам (rate_limited/unavailable/...).
	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_source_errors_total",
		Help: "Timeline source failures by kind.",
	}, []string{"kind"})

	// ActiveStreams — открытых SSE-потоков прямо сейчас.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gallery_active_streams",
		Help: "Currently open SSE streams.",
	})

	// AggregateDuration — длительность одного прогона выборки.
	AggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gallery_aggregate_duration_seconds",
		Help:    "Duration of one aggregation run.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
