package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/feederpull/internal/catalog"
	"github.com/nerrad567/feederpull/internal/feeder"
	"github.com/nerrad567/feederpull/internal/historian"
	"github.com/nerrad567/feederpull/internal/ledger"
)

// fetchAll fetches every catalog row in order and groups the non-empty
// series by circuit. Only staging failures and cancellation stop it.
func (r *Runner) fetchAll(ctx context.Context, sum *Summary, mappings []catalog.TagMapping) (*feeder.Batch, error) {
	batch := feeder.NewBatch()

	for i, m := range mappings {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d of %d tags: %w", ErrInterrupted, i, len(mappings), err)
		}

		series, err := r.fetchTag(ctx, sum, m)
		if err != nil {
			return nil, err
		}
		if series == nil {
			continue
		}

		if batch.Add(*series) {
			r.logger.Warn("tag listed more than once, keeping the latest fetch",
				"circuit_id", m.CircuitID,
				"tag", m.TagName,
			)
		}
	}
	return batch, nil
}

// fetchTag fetches and stages one tag. A nil series with a nil error means
// the tag was skipped.
func (r *Runner) fetchTag(ctx context.Context, sum *Summary, m catalog.TagMapping) (*feeder.TagSeries, error) {
	start := r.now()
	points, err := r.fetcher.Summary(ctx, m.TagWebID)
	took := r.now().Sub(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w while fetching %s: %w", ErrInterrupted, m.TagName, ctxErr)
		}
		reason := skipReason(err)
		sum.TagsSkipped++
		r.logger.Warn("tag fetch failed, skipping",
			"circuit_id", m.CircuitID,
			"tag", m.TagName,
			"web_id", m.TagWebID,
			"reason", reason,
			"error", err,
		)
		r.recordFetch(ctx, sum, m, ledger.FetchFailed, 0, err)
		r.metrics.TagSkipped(reason, took)
		return nil, nil
	}

	if len(points) == 0 {
		sum.TagsSkipped++
		r.logger.Info("tag returned no samples, skipping", "circuit_id", m.CircuitID, "tag", m.TagName)
		r.recordFetch(ctx, sum, m, ledger.FetchEmpty, 0, nil)
		r.metrics.TagSkipped(ReasonEmpty, 0)
		return nil, nil
	}

	series := feeder.TagSeries{
		CircuitID: m.CircuitID,
		TagName:   m.TagName,
		Points:    points,
	}
	if r.opts.StageRaw {
		path, err := r.store.WriteRaw(series)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStaging, err)
		}
		series.ArtifactPath = path
	}

	sum.TagsFetched++
	r.logger.Info("tag fetched",
		"circuit_id", m.CircuitID,
		"tag", m.TagName,
		"points", len(points),
		"took", took.String(),
	)
	r.recordFetch(ctx, sum, m, ledger.FetchFetched, len(points), nil)
	r.metrics.TagFetched(len(points), took)

	if err := r.mirror.Mirror(series); err != nil {
		r.logger.Warn("mirror: copying samples failed", "circuit_id", m.CircuitID, "tag", m.TagName, "error", err)
	}
	return &series, nil
}

func (r *Runner) recordFetch(ctx context.Context, sum *Summary, m catalog.TagMapping, status string, points int, fetchErr error) {
	f := ledger.Fetch{
		CircuitID: m.CircuitID,
		TagWebID:  m.TagWebID,
		TagName:   m.TagName,
		Status:    status,
		Points:    points,
		FetchedAt: r.now(),
	}
	if fetchErr != nil {
		f.Error = fetchErr.Error()
	}
	if err := r.ledger.RecordFetch(ctx, sum.RunID, f); err != nil {
		r.logger.Warn("ledger: recording fetch failed", "run_id", sum.RunID, "tag", m.TagName, "error", err)
	}
}

// skipReason classifies a fetch error for metrics.
func skipReason(err error) string {
	switch {
	case errors.Is(err, historian.ErrUnexpectedStatus):
		return ReasonStatus
	case errors.Is(err, historian.ErrMalformedResponse),
		errors.Is(err, historian.ErrResponseTooLarge),
		errors.Is(err, historian.ErrInvalidWebID):
		return ReasonInvalid
	default:
		return ReasonTransport
	}
}
