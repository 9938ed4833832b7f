package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sst_archive"

// Metrics holds the Prometheus collectors for archive runs.
type Metrics struct {
	MissingDays     prometheus.Gauge
	DaysIngested    prometheus.Counter
	DaysFailed      *prometheus.CounterVec // labels: reason={download,empty,read,write}
	DHWWritten      prometheus.Counter
	DHWSkipped      *prometheus.CounterVec // labels: reason={exists,incomplete,error}
	CorruptDays     prometheus.Counter
	MonthsReduced   *prometheus.CounterVec // labels: kind={sst,dhw}
	EventsPublished prometheus.Counter

	StageDuration   *prometheus.HistogramVec // labels: stage={ledger,ingest,dhw,monthly,publish}
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

var stageBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}

func newMetrics() *Metrics {
	return &Metrics{
		MissingDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_days",
			Help:      "Days in the requested range without an SST record at the start of the last run.",
		}),
		DaysIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_ingested_total",
			Help:      "Daily SST records committed.",
		}),
		DaysFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_failed_total",
			Help:      "Days that could not be ingested, by reason.",
		}, []string{"reason"}),
		DHWWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dhw_written_total",
			Help:      "Daily DHW records committed.",
		}),
		DHWSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dhw_skipped_total",
			Help:      "Days for which no DHW record was written, by reason.",
		}, []string{"reason"}),
		CorruptDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_window_days_total",
			Help:      "Unreadable SST records encountered while accumulating windows.",
		}),
		MonthsReduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "months_reduced_total",
			Help:      "Monthly mean grids written, by kind.",
		}, []string{"kind"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Record events written to Kafka.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without a fatal error.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MissingDays,
		m.DaysIngested,
		m.DaysFailed,
		m.DHWWritten,
		m.DHWSkipped,
		m.CorruptDays,
		m.MonthsReduced,
		m.EventsPublished,
		m.StageDuration,
		m.PipelineRunning,
		m.LastSuccess,
	}
}

// NewMetrics creates and registers all archive metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
