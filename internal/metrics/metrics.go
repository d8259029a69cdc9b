// Package metrics exports ingestion counters and timings to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/esg/internal/core"
)

const namespace = "esg"

// Ingestion implements core.Recorder.
type Ingestion struct {
	runs         *prometheus.CounterVec
	inserted     *prometheus.CounterVec
	rowsSkipped  *prometheus.CounterVec
	filesSkipped *prometheus.CounterVec
	duration     prometheus.Histogram
}

// NewIngestion registers the ingestion metrics with reg.
func NewIngestion(reg prometheus.Registerer) *Ingestion {
	factory := promauto.With(reg)
	return &Ingestion{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestions_total",
			Help:      "Total number of finished ingestion runs.",
		}, []string{"outcome"}),
		inserted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Total number of records committed by ingestion runs.",
		}, []string{"kind"}),
		rowsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Total number of tabular rows left out during normalization.",
		}, []string{"kind"}),
		filesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Total number of archive files that contributed no records.",
		}, []string{"reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets: []float64{
				0.05, 0.1, 0.25, 0.5,
				1, 2.5, 5, 10,
				30, 60, 300,
			},
		}),
	}
}

func (m *Ingestion) RunFinished(outcome core.Outcome, result core.IngestionResult) {
	m.runs.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(result.Duration.Seconds())

	if outcome != core.OutcomeSuccess {
		return
	}

	m.inserted.WithLabelValues("company").Add(float64(result.CompaniesInserted))
	m.inserted.WithLabelValues("news").Add(float64(result.NewsInserted))
	m.inserted.WithLabelValues("report").Add(float64(result.ReportsInserted))
	m.rowsSkipped.WithLabelValues("company").Add(float64(result.Skipped.CompanyRows))
	m.rowsSkipped.WithLabelValues("news").Add(float64(result.Skipped.NewsRows))
	for reason, n := range result.Skipped.Files {
		m.filesSkipped.WithLabelValues(reason).Add(float64(n))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
