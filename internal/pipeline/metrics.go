package pipeline

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/retry"
)

// PrometheusObserver records run and step metrics. It also exposes hooks for
// the retry executor and the cache store so upstream retries and cache hit
// rates land in the same registry.
type PrometheusObserver struct {
	runDuration  *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
	stepOutcomes *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	retries      *prometheus.CounterVec
}

// NewPrometheusObserver registers the metrics under namespace_pipeline_*.
func NewPrometheusObserver(namespace string, registerer prometheus.Registerer) *PrometheusObserver {
	if namespace == "" {
		namespace = "bethemayor"
	}

	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"phase"},
	)

	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"step", "status"},
	)

	stepOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_outcomes_total",
			Help:      "Pipeline step outcomes by status",
		},
		[]string{"step", "status"},
	)

	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Generation cache lookups by key kind and result",
		},
		[]string{"kind", "result"},
	)

	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Upstream calls retried after a transient failure",
		},
		[]string{"operation", "kind"},
	)

	registerer.MustRegister(runDuration, stepDuration, stepOutcomes, cacheLookups, retries)

	return &PrometheusObserver{
		runDuration:  runDuration,
		stepDuration: stepDuration,
		stepOutcomes: stepOutcomes,
		cacheLookups: cacheLookups,
		retries:      retries,
	}
}

func (o *PrometheusObserver) OnRunStart(context.Context, *RunStartEvent) {}

func (o *PrometheusObserver) OnStepStart(context.Context, *StepStartEvent) {}

func (o *PrometheusObserver) OnStepEnd(_ context.Context, event *StepEndEvent) {
	status := "succeeded"
	switch {
	case event.Error != nil:
		status = "failed"
	case event.Skipped:
		status = "skipped"
	case event.Cached:
		status = "cached"
	}
	o.stepDuration.WithLabelValues(string(event.Step), status).Observe(event.Duration.Seconds())
	o.stepOutcomes.WithLabelValues(string(event.Step), status).Inc()
}

func (o *PrometheusObserver) OnRunEnd(_ context.Context, event *RunEndEvent) {
	o.runDuration.WithLabelValues(string(event.Phase)).Observe(event.Duration.Seconds())
}

// ObserveRetry matches retry.Options.OnRetry.
func (o *PrometheusObserver) ObserveRetry(event retry.Event) {
	o.retries.WithLabelValues(event.Operation, string(domain.KindOf(event.Err))).Inc()
}

// ObserveCacheLookup matches cache.FileOptions.OnLookup.
func (o *PrometheusObserver) ObserveCacheLookup(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.cacheLookups.WithLabelValues(keyKind(key), result).Inc()
}

// keyKind maps a cache key onto its prefix so labels stay low-cardinality.
func keyKind(key string) string {
	for _, prefix := range []string{
		cache.PrefixMusic,
		cache.PrefixLyrics,
		cache.PrefixCharacterImage,
		cache.PrefixCapturedImage,
		cache.PrefixRecordedVideo,
	} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimSuffix(prefix, "-")
		}
	}
	return "other"
}

var _ Observer = (*PrometheusObserver)(nil)
