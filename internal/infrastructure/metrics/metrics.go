package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

const (
	namespace = "feederpull"

	defaultJob         = "feederpull"
	defaultPushTimeout = 10 * time.Second
)

// Recorder holds the metrics of a single run.
//
// Thread Safety:
//   - All methods are safe for concurrent use; Prometheus collectors are.
type Recorder struct {
	cfg      config.MetricsConfig
	registry *prometheus.Registry

	tagsFetched    prometheus.Counter
	tagsSkipped    *prometheus.CounterVec
	samples        prometheus.Counter
	fetchDuration  prometheus.Histogram
	feedersWritten prometheus.Counter
	feedersFailed  prometheus.Counter
	feederRows     prometheus.Gauge
	runDuration    prometheus.Gauge
	runSucceeded   prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New(cfg config.MetricsConfig) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		cfg:      cfg,
		registry: reg,
		tagsFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_fetched_total",
			Help:      "Tags whose summary was fetched with at least one sample.",
		}),
		tagsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_skipped_total",
			Help:      "Tags skipped, by reason.",
		}, []string{"reason"}),
		samples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_fetched_total",
			Help:      "Summary samples received from the historian.",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of historian summary requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		feedersWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeders_written_total",
			Help:      "Feeder CSV files written.",
		}),
		feedersFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeders_failed_total",
			Help:      "Feeders whose aggregation failed.",
		}),
		feederRows: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feeder_rows_written",
			Help:      "Data rows across all feeder files written by the run.",
		}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the run.",
		}),
		runSucceeded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_succeeded",
			Help:      "1 if the run finished without error, 0 otherwise.",
		}),
		// Registered only once a run succeeds: a push replaces the whole
		// group, so a failed run must not overwrite the gateway's value.
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}
}

// TagFetched records a successful fetch of points samples.
func (r *Recorder) TagFetched(points int, took time.Duration) {
	r.tagsFetched.Inc()
	r.samples.Add(float64(points))
	r.fetchDuration.Observe(took.Seconds())
}

// TagSkipped records a skipped tag under reason. A zero duration means no
// request was timed and is not observed.
func (r *Recorder) TagSkipped(reason string, took time.Duration) {
	r.tagsSkipped.WithLabelValues(reason).Inc()
	if took > 0 {
		r.fetchDuration.Observe(took.Seconds())
	}
}

// FeederWritten records one feeder file with rows data rows.
func (r *Recorder) FeederWritten(rows int) {
	r.feedersWritten.Inc()
	r.feederRows.Add(float64(rows))
}

// FeederFailed records a failed aggregation.
func (r *Recorder) FeederFailed() {
	r.feedersFailed.Inc()
}

// RunFinished records the run outcome. last_success_timestamp_seconds is
// only part of the pushed group after a successful run.
func (r *Recorder) RunFinished(succeeded bool, took time.Duration, at time.Time) {
	r.runDuration.Set(took.Seconds())
	if succeeded {
		r.runSucceeded.Set(1)
		r.lastSuccess.Set(float64(at.Unix()))
		r.registry.Register(r.lastSuccess) //nolint:errcheck // only AlreadyRegisteredError on a repeat success
		return
	}
	r.runSucceeded.Set(0)
	r.registry.Unregister(r.lastSuccess)
}

// Push replaces the job's metric group on the Pushgateway.
//
// Returns:
//   - error: ErrDisabled when metrics are off or no URL is configured,
//     or a wrapped ErrPushFailed
func (r *Recorder) Push(ctx context.Context) error {
	if !r.cfg.Enabled || r.cfg.PushgatewayURL == "" {
		return ErrDisabled
	}

	job := r.cfg.Job
	if job == "" {
		job = defaultJob
	}

	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	if err := push.New(r.cfg.PushgatewayURL, job).Gatherer(r.registry).PushContext(pushCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrPushFailed, err)
	}
	return nil
}

// HealthCheck queries the Pushgateway's /-/healthy endpoint.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	if !r.cfg.Enabled || r.cfg.PushgatewayURL == "" {
		return ErrDisabled
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	healthURL := strings.TrimRight(r.cfg.PushgatewayURL, "/") + "/-/healthy"
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, healthURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	resp.Body.Close() //nolint:errcheck // body is not read

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}
