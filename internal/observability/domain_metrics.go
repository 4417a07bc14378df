package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqltranslator_translations_total",
			Help: "Translations by direction and final outcome.",
		},
		[]string{"direction", "outcome"},
	)
	translationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqltranslator_translation_duration_seconds",
			Help:    "End-to-end translation latency including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 45},
		},
		[]string{"direction"},
	)
	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqltranslator_generation_attempts_total",
			Help: "Generation backend calls by provider and result.",
		},
		[]string{"provider", "result"},
	)
	archiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqltranslator_archive_runs_total",
			Help: "History archive runs by status.",
		},
		[]string{"status"},
	)
	archivedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqltranslator_archived_entries_total",
			Help: "History entries written to archive files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		translationDurationSeconds,
		generationAttemptsTotal,
		archiveRunsTotal,
		archivedEntriesTotal,
	)
}

func ObserveTranslation(direction, outcome string, elapsed time.Duration) {
	translationsTotal.WithLabelValues(direction, outcome).Inc()
	translationDurationSeconds.WithLabelValues(direction).Observe(elapsed.Seconds())
}

func ObserveGenerationAttempt(provider, result string) {
	generationAttemptsTotal.WithLabelValues(provider, result).Inc()
}

func ObserveArchiveRun(status string, entries int) {
	archiveRunsTotal.WithLabelValues(status).Inc()
	if entries > 0 {
		archivedEntriesTotal.Add(float64(entries))
	}
}
