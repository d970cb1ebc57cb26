package pipeline

import (
	"context"
	"fmt"

	"github.com/nerrad567/feederpull/internal/catalog"
	"github.com/nerrad567/feederpull/internal/feeder"
	"github.com/nerrad567/feederpull/internal/ledger"
)

// aggregateAll builds the feeder table of every circuit in order. The
// first aggregation failure ends the loop; feeders already written stay.
//
// Circuits whose feeder files would share a path fail the run before any
// feeder is written, leaving every staged artifact for recovery.
func (r *Runner) aggregateAll(ctx context.Context, sum *Summary, circuits []string, batch *feeder.Batch) error {
	var populated []string
	for _, circuitID := range circuits {
		if len(batch.Series(circuitID)) > 0 {
			populated = append(populated, circuitID)
		}
	}
	if err := r.store.TableCollisions(populated); err != nil {
		return fmt.Errorf("%w: %w", ErrAggregate, err)
	}

	for i, circuitID := range circuits {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w after %d of %d feeders: %w", ErrInterrupted, i, len(circuits), err)
		}

		if len(batch.Series(circuitID)) == 0 {
			sum.FeedersSkipped++
			r.logger.Warn("no series fetched for circuit, skipping feeder", "circuit_id", circuitID)
			continue
		}

		if err := r.store.RawCollisions(circuitID, tagNames(batch.Series(circuitID))); err != nil {
			r.logger.Warn("raw artifacts share a path, recovery from staged files would lose tags",
				"circuit_id", circuitID, "error", err)
		}

		if err := r.aggregateCircuit(ctx, sum, circuitID, batch); err != nil {
			return err
		}
	}
	return nil
}

func tagNames(series []feeder.TagSeries) []string {
	names := make([]string, len(series))
	for i, s := range series {
		names[i] = s.TagName
	}
	return names
}

// aggregateCircuit joins and writes one feeder, then removes the circuit's
// raw artifacts whatever the outcome.
func (r *Runner) aggregateCircuit(ctx context.Context, sum *Summary, circuitID string, batch *feeder.Batch) error {
	series := batch.Series(circuitID)

	table, err := feeder.Join(circuitID, series, r.opts.FillPolicy)
	var path string
	if err == nil {
		path, err = r.store.WriteTable(table)
	}

	artifacts := batch.ArtifactPaths(circuitID)
	if rmErr := r.store.Remove(artifacts); rmErr != nil {
		r.logger.Warn("removing raw artifacts failed", "circuit_id", circuitID, "error", rmErr)
	}

	if err != nil {
		r.metrics.FeederFailed()
		if nErr := r.notifier.FeederFailed(FeederEvent{
			RunID:     sum.RunID,
			CircuitID: circuitID,
			Columns:   len(series),
			Error:     err.Error(),
			At:        r.now(),
		}); nErr != nil {
			r.logger.Warn("notifier: feeder failure event failed", "circuit_id", circuitID, "error", nErr)
		}
		return fmt.Errorf("%w: circuit %s: %w", ErrAggregate, circuitID, err)
	}

	sum.FeedersWritten++
	sum.Outputs = append(sum.Outputs, path)
	r.logger.Info("feeder written",
		"circuit_id", circuitID,
		"path", path,
		"rows", table.Rows(),
		"columns", len(table.Columns),
		"artifacts_removed", len(artifacts),
	)

	writtenAt := r.now()
	if err := r.ledger.RecordFeeder(ctx, sum.RunID, ledger.FeederOutput{
		CircuitID: circuitID,
		Path:      path,
		Rows:      table.Rows(),
		Columns:   len(table.Columns),
		WrittenAt: writtenAt,
	}); err != nil {
		r.logger.Warn("ledger: recording feeder failed", "circuit_id", circuitID, "error", err)
	}
	r.metrics.FeederWritten(table.Rows())
	if err := r.notifier.FeederWritten(FeederEvent{
		RunID:     sum.RunID,
		CircuitID: circuitID,
		Path:      path,
		Rows:      table.Rows(),
		Columns:   len(table.Columns),
		At:        writtenAt,
	}); err != nil {
		r.logger.Warn("notifier: feeder written event failed", "circuit_id", circuitID, "error", err)
	}
	return nil
}

// Recover rebuilds feeder files from raw artifacts left in the raw
// directory, typically by a run that was interrupted after fetching.
//
// The catalog is still loaded to know which circuits exist: each file is
// assigned to the circuit with the longest matching "{circuit_id}_" prefix.
// Files matching no circuit are logged and left in place.
//
// Returns:
//   - *Summary: Always non-nil
//   - error: nil on success, or an error wrapping ErrCatalog, ErrStaging,
//     ErrAggregate or ErrInterrupted
func (r *Runner) Recover(ctx context.Context) (*Summary, error) {
	sum := r.begin(ctx, ledger.ModeRecover)
	err := r.recover(ctx, sum)
	r.finish(ctx, sum, err)
	return sum, err
}

func (r *Runner) recover(ctx context.Context, sum *Summary) error {
	mappings, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	batch, orphans, err := r.store.ScanRaw(catalog.Circuits(mappings))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStaging, err)
	}
	for _, path := range orphans {
		r.logger.Warn("raw artifact matches no catalog circuit, leaving it", "path", path)
	}

	sum.TagsTotal = batch.Len()
	if batch.Len() == 0 {
		r.logger.Info("no raw artifacts to recover", "raw_dir", r.store.RawDir)
		return nil
	}
	r.logger.Info("recovering raw artifacts", "artifacts", batch.Len(), "circuits", len(batch.Circuits()))

	return r.aggregateAll(ctx, sum, batch.Circuits(), batch)
}
