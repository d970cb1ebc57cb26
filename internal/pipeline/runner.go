package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/feederpull/internal/catalog"
	"github.com/nerrad567/feederpull/internal/feeder"
	"github.com/nerrad567/feederpull/internal/infrastructure/config"
	"github.com/nerrad567/feederpull/internal/ledger"
)

// Source provides the tag catalog. *catalog.SQLSource satisfies it.
type Source interface {
	Load(ctx context.Context) ([]catalog.TagMapping, error)
}

// Fetcher retrieves the summary series of one tag. *historian.Client
// satisfies it.
type Fetcher interface {
	Summary(ctx context.Context, webID string) ([]feeder.SamplePoint, error)
}

// Ledger persists run progress. *ledger.Repository satisfies it.
type Ledger interface {
	StartRun(ctx context.Context, run ledger.Run) error
	RecordFetch(ctx context.Context, runID string, f ledger.Fetch) error
	RecordFeeder(ctx context.Context, runID string, out ledger.FeederOutput) error
	FinishRun(ctx context.Context, run ledger.Run) error
}

// Notifier announces run progress to outside listeners.
type Notifier interface {
	RunStarted(e RunEvent) error
	FeederWritten(e FeederEvent) error
	FeederFailed(e FeederEvent) error
	RunFinished(s Summary) error
}

// Mirror receives every fetched series, e.g. to copy it into a
// time-series database.
type Mirror interface {
	Mirror(series feeder.TagSeries) error
}

// Metrics receives run counters. *metrics.Recorder satisfies it.
type Metrics interface {
	TagFetched(points int, took time.Duration)
	TagSkipped(reason string, took time.Duration)
	FeederWritten(rows int)
	FeederFailed()
	RunFinished(succeeded bool, took time.Duration, at time.Time)
}

// Logger defines the logging interface used by the Runner.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Skip reasons reported to Metrics.TagSkipped.
const (
	ReasonStatus    = "status"
	ReasonTransport = "transport"
	ReasonInvalid   = "invalid"
	ReasonEmpty     = "empty"
)

// Options configure what a run requests and how feeders are assembled.
type Options struct {
	Version    string
	Window     config.WindowConfig
	FillPolicy feeder.FillPolicy

	// StageRaw writes every fetched series to the raw directory before
	// aggregation so an interrupted run can be recovered.
	StageRaw bool
}

// RunEvent announces a run.
type RunEvent struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Version     string    `json:"version"`
	StartedAt   time.Time `json:"started_at"`
	WindowStart string    `json:"window_start"`
	WindowEnd   string    `json:"window_end"`
	SummaryType string    `json:"summary_type"`
}

// FeederEvent reports the outcome of one circuit's aggregation.
type FeederEvent struct {
	RunID     string    `json:"run_id"`
	CircuitID string    `json:"circuit_id"`
	Path      string    `json:"path,omitempty"`
	Rows      int       `json:"rows"`
	Columns   int       `json:"columns"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Summary is the final account of a run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`

	TagsTotal      int `json:"tags_total"`
	TagsFetched    int `json:"tags_fetched"`
	TagsSkipped    int `json:"tags_skipped"`
	FeedersWritten int `json:"feeders_written"`
	FeedersSkipped int `json:"feeders_skipped"`

	// Outputs lists the feeder files written, in write order.
	Outputs []string `json:"outputs"`
}

// Duration returns the wall-clock time the run took.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Succeeded reports whether the run finished without error.
func (s *Summary) Succeeded() bool {
	return s.Status == ledger.StatusSucceeded
}

// Runner executes batch runs. A Runner is not safe for concurrent use;
// runs are strictly sequential.
type Runner struct {
	source  Source
	fetcher Fetcher
	store   *feeder.Store
	opts    Options

	logger   Logger
	ledger   Ledger
	notifier Notifier
	mirror   Mirror
	metrics  Metrics

	now   func() time.Time
	newID func() string
}

// NewRunner creates a runner with no-op sinks.
//
// Parameters:
//   - source: Tag catalog
//   - fetcher: Historian client
//   - store: Raw and output file locations
//   - opts: Window, fill policy and staging options
func NewRunner(source Source, fetcher Fetcher, store *feeder.Store, opts Options) *Runner {
	if opts.FillPolicy == "" {
		opts.FillPolicy = feeder.FillReject
	}
	return &Runner{
		source:   source,
		fetcher:  fetcher,
		store:    store,
		opts:     opts,
		logger:   noopLogger{},
		ledger:   noopLedger{},
		notifier: noopNotifier{},
		mirror:   noopMirror{},
		metrics:  noopMetrics{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// SetLogger sets the run logger. nil restores the no-op logger.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetLedger sets the run ledger. nil disables it.
func (r *Runner) SetLedger(l Ledger) {
	if l == nil {
		l = noopLedger{}
	}
	r.ledger = l
}

// SetNotifier sets the event notifier. nil disables it.
func (r *Runner) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	r.notifier = n
}

// SetMirror sets the sample mirror. nil disables it.
func (r *Runner) SetMirror(m Mirror) {
	if m == nil {
		m = noopMirror{}
	}
	r.mirror = m
}

// SetMetrics sets the metrics recorder. nil disables it.
func (r *Runner) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	r.metrics = m
}

// Run executes a full batch run: catalog, fetch, stage, aggregate.
//
// Returns:
//   - *Summary: Always non-nil, also when the run failed
//   - error: nil on success, or an error wrapping ErrCatalog, ErrStaging,
//     ErrAggregate or ErrInterrupted
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	sum := r.begin(ctx, ledger.ModeRun)
	err := r.run(ctx, sum)
	r.finish(ctx, sum, err)
	return sum, err
}

func (r *Runner) run(ctx context.Context, sum *Summary) error {
	mappings, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalog, err)
	}
	circuits := catalog.Circuits(mappings)
	sum.TagsTotal = len(mappings)
	r.logger.Info("tag catalog loaded", "tags", len(mappings), "circuits", len(circuits))

	if len(mappings) == 0 {
		r.logger.Warn("tag catalog is empty, nothing to fetch")
		return nil
	}

	batch, err := r.fetchAll(ctx, sum, mappings)
	if err != nil {
		return err
	}
	return r.aggregateAll(ctx, sum, circuits, batch)
}

// begin opens the run: id, banner, ledger row and start event.
func (r *Runner) begin(ctx context.Context, mode string) *Summary {
	sum := &Summary{
		RunID:     r.newID(),
		Mode:      mode,
		Version:   r.opts.Version,
		StartedAt: r.now(),
		Status:    ledger.StatusRunning,
		Outputs:   []string{},
	}

	r.logger.Info("feederpull run starting",
		"run_id", sum.RunID,
		"mode", mode,
		"version", sum.Version,
		"window_start", r.opts.Window.Start,
		"window_end", r.opts.Window.End,
		"summary_type", r.opts.Window.SummaryType,
		"fill_policy", string(r.opts.FillPolicy),
	)

	if err := r.ledger.StartRun(ctx, r.ledgerRun(sum)); err != nil {
		r.logger.Warn("ledger: recording run start failed", "run_id", sum.RunID, "error", err)
	}
	if err := r.notifier.RunStarted(RunEvent{
		RunID:       sum.RunID,
		Mode:        mode,
		Version:     sum.Version,
		StartedAt:   sum.StartedAt,
		WindowStart: r.opts.Window.Start,
		WindowEnd:   r.opts.Window.End,
		SummaryType: r.opts.Window.SummaryType,
	}); err != nil {
		r.logger.Warn("notifier: run start event failed", "run_id", sum.RunID, "error", err)
	}
	return sum
}

// finish closes the run in every sink and logs the end banner. Sinks are
// written with a context that survives cancellation of the run.
func (r *Runner) finish(ctx context.Context, sum *Summary, runErr error) {
	ctx = context.WithoutCancel(ctx)

	sum.FinishedAt = r.now()
	sum.Status = ledger.StatusSucceeded
	if runErr != nil {
		sum.Status = ledger.StatusFailed
		sum.Error = runErr.Error()
	}

	if err := r.ledger.FinishRun(ctx, r.ledgerRun(sum)); err != nil {
		r.logger.Warn("ledger: recording run finish failed", "run_id", sum.RunID, "error", err)
	}
	r.metrics.RunFinished(runErr == nil, sum.Duration(), sum.FinishedAt)
	if err := r.notifier.RunFinished(*sum); err != nil {
		r.logger.Warn("notifier: run finish event failed", "run_id", sum.RunID, "error", err)
	}

	attrs := []any{
		"run_id", sum.RunID,
		"mode", sum.Mode,
		"version", sum.Version,
		"elapsed", sum.Duration().Round(time.Millisecond).String(),
		"tags_total", sum.TagsTotal,
		"tags_fetched", sum.TagsFetched,
		"tags_skipped", sum.TagsSkipped,
		"feeders_written", sum.FeedersWritten,
		"feeders_skipped", sum.FeedersSkipped,
	}
	if runErr != nil {
		r.logger.Error("feederpull run failed", append(attrs, "error", runErr)...)
		return
	}
	r.logger.Info("feederpull run finished", attrs...)
}

func (r *Runner) ledgerRun(sum *Summary) ledger.Run {
	return ledger.Run{
		ID:             sum.RunID,
		Version:        sum.Version,
		Mode:           sum.Mode,
		StartedAt:      sum.StartedAt,
		FinishedAt:     sum.FinishedAt,
		Status:         sum.Status,
		WindowStart:    r.opts.Window.Start,
		WindowEnd:      r.opts.Window.End,
		SummaryType:    r.opts.Window.SummaryType,
		TagsTotal:      sum.TagsTotal,
		TagsFetched:    sum.TagsFetched,
		TagsSkipped:    sum.TagsSkipped,
		FeedersWritten: sum.FeedersWritten,
		FeedersSkipped: sum.FeedersSkipped,
		Error:          sum.Error,
	}
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopLedger struct{}

func (noopLedger) StartRun(context.Context, ledger.Run) error                      { return nil }
func (noopLedger) RecordFetch(context.Context, string, ledger.Fetch) error         { return nil }
func (noopLedger) RecordFeeder(context.Context, string, ledger.FeederOutput) error { return nil }
func (noopLedger) FinishRun(context.Context, ledger.Run) error                     { return nil }

type noopNotifier struct{}

func (noopNotifier) RunStarted(RunEvent) error       { return nil }
func (noopNotifier) FeederWritten(FeederEvent) error { return nil }
func (noopNotifier) FeederFailed(FeederEvent) error  { return nil }
func (noopNotifier) RunFinished(Summary) error       { return nil }

type noopMirror struct{}

func (noopMirror) Mirror(feeder.TagSeries) error { return nil }

type noopMetrics struct{}

func (noopMetrics) TagFetched(int, time.Duration)              {}
func (noopMetrics) TagSkipped(string, time.Duration)           {}
func (noopMetrics) FeederWritten(int)                          {}
func (noopMetrics) FeederFailed()                              {}
func (noopMetrics) RunFinished(bool, time.Duration, time.Time) {}
