package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline, the record store, and the live view.
type Metrics struct {
	// Bulk ingestion metrics.
	UploadsTotal    prometheus.Counter
	UploadFailures  *prometheus.CounterVec // label: stage={extension,storage,parse}
	RowsParsed      prometheus.Counter
	RowsRejected    prometheus.Counter
	RecordsCreated  prometheus.Counter
	CreateFailures  prometheus.Counter
	IngestDuration  prometheus.Histogram
	IngestBatchSize prometheus.Histogram

	// Change-feed and live-view metrics.
	FeedEvents    *prometheus.CounterVec // label: type={insert,update,delete}
	FeedConnected prometheus.Gauge
	LiveViewSize  prometheus.Gauge

	// Store client metrics.
	StoreErrors *prometheus.CounterVec // label: op={create,list,update,delete}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.UploadsTotal,
		m.UploadFailures,
		m.RowsParsed,
		m.RowsRejected,
		m.RecordsCreated,
		m.CreateFailures,
		m.IngestDuration,
		m.IngestBatchSize,
		m.FeedEvents,
		m.FeedConnected,
		m.LiveViewSize,
		m.StoreErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UploadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "uploads_total",
			Help:      "Total bulk CSV ingestion attempts.",
		}),
		UploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "upload_failures_total",
			Help:      "File-level ingestion failures by stage.",
		}, []string{"stage"}),
		RowsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "rows_parsed_total",
			Help:      "Total CSV data rows parsed across all uploads.",
		}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "rows_rejected_total",
			Help:      "Total rows rejected by validation.",
		}),
		RecordsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "records_created_total",
			Help:      "Total records persisted through bulk ingestion.",
		}),
		CreateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "create_failures_total",
			Help:      "Total per-record create failures during bulk ingestion.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eq_records",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete upload-parse-validate-persist run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eq_records",
			Name:      "ingest_batch_size",
			Help:      "Number of data rows per ingested file.",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000},
		}),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "feed_events_total",
			Help:      "Change-feed events received by type.",
		}, []string{"type"}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eq_records",
			Name:      "feed_connected",
			Help:      "1 while the change-feed subscription is active.",
		}),
		LiveViewSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eq_records",
			Name:      "live_view_size",
			Help:      "Records currently held by the admin live view.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eq_records",
			Name:      "store_errors_total",
			Help:      "Record store operation failures by operation.",
		}, []string{"op"}),
	}
}
