package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/feederpull/internal/catalog"
	"github.com/nerrad567/feederpull/internal/historian"
	"github.com/nerrad567/feederpull/internal/infrastructure/database"
	"github.com/nerrad567/feederpull/internal/infrastructure/influxdb"
	"github.com/nerrad567/feederpull/internal/infrastructure/metrics"
	"github.com/nerrad567/feederpull/internal/infrastructure/mqtt"
	"github.com/nerrad567/feederpull/internal/ledger"
	"github.com/nerrad567/feederpull/internal/pipeline"
)

const defaultHistoryLimit = 20

// errLedgerDisabled is returned by commands that need the run ledger.
var errLedgerDisabled = errors.New("run ledger is disabled (database.enabled: false)")

func newRunCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch every catalog tag and write the feeder files",
		Long: `run loads the tag catalog, fetches the summary window of every tag,
stages the raw series, joins them into one CSV per circuit and removes the
staged files of each circuit once its feeder file is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), configPath(), ledger.ModeRun)
		},
	}
}

func newAggregateCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild feeder files from staged raw artifacts",
		Long: `aggregate skips the historian and joins the raw files left in the raw
directory by an interrupted run. Only circuits present in the current
catalog are rebuilt; other raw files are reported and left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), configPath(), ledger.ModeRecover)
		},
	}
}

// runBatch performs one full or recovery run with every configured sink.
func runBatch(ctx context.Context, configPath, mode string) error {
	a, err := bootstrap(configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	runner, s, err := a.newRunner(ctx)
	if err != nil {
		a.log.Error("run setup failed", "error", err)
		return err
	}

	var sum *pipeline.Summary
	if mode == ledger.ModeRecover {
		sum, err = runner.Recover(ctx)
	} else {
		sum, err = runner.Run(ctx)
	}
	a.report(ctx, s, sum)
	return err
}

func newCatalogCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the tag catalog as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(configPath(), true)
			if err != nil {
				return err
			}
			defer a.close()

			source, err := a.openCatalog(cmd.Context())
			if err != nil {
				return err
			}
			mappings, err := source.Load(cmd.Context())
			if err != nil {
				return err
			}
			a.log.Info("tag catalog loaded",
				"tags", len(mappings),
				"circuits", len(catalog.Circuits(mappings)),
			)
			return catalog.WriteCSV(cmd.OutOrStdout(), mappings)
		},
	}
}

func newHistoryCmd(configPath func() string) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the ledger",
		Long: `history lists the most recent runs, newest first. With --run it prints
one run in detail: every tag fetch and every feeder file written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(configPath(), true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			_, repo, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				return errLedgerDisabled
			}

			if runID != "" {
				return showRun(ctx, cmd.OutOrStdout(), repo, runID)
			}
			runs, err := repo.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the fetches and feeder files of one run")
	return cmd
}

// showRun loads one run with its fetches and feeder files and prints it.
func showRun(ctx context.Context, w io.Writer, repo *ledger.Repository, runID string) error {
	run, err := repo.Get(ctx, runID)
	if err != nil {
		return err
	}
	fetches, err := repo.Fetches(ctx, runID)
	if err != nil {
		return err
	}
	feeders, err := repo.Feeders(ctx, runID)
	if err != nil {
		return err
	}
	return printRun(w, run, fetches, feeders)
}

// printRun writes the detail view of one run.
func printRun(w io.Writer, run ledger.Run, fetches []ledger.Fetch, feeders []ledger.FeederOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	finished := "-"
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Version:\t%s\n", run.Version)
	fmt.Fprintf(tw, "Mode:\t%s\n", run.Mode)
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Window:\t%s to %s (%s)\n", run.WindowStart, run.WindowEnd, run.SummaryType)
	fmt.Fprintf(tw, "Started:\t%s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Finished:\t%s\n", finished)
	fmt.Fprintf(tw, "Tags:\t%d fetched, %d skipped of %d\n", run.TagsFetched, run.TagsSkipped, run.TagsTotal)
	fmt.Fprintf(tw, "Feeders:\t%d written, %d skipped\n", run.FeedersWritten, run.FeedersSkipped)
	if run.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFetches (%d)\n", len(fetches))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CIRCUIT\tTAG\tSTATUS\tPOINTS\tERROR")
	for _, f := range fetches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.CircuitID, f.TagName, f.Status, f.Points, f.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nFeeder files (%d)\n", len(feeders))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CIRCUIT\tROWS\tCOLUMNS\tPATH")
	for _, f := range feeders {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", f.CircuitID, f.Rows, f.Columns, f.Path)
	}
	return tw.Flush()
}

func newMigrateCmd(configPath func() string) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Show or roll back run ledger migrations",
		Long: `migrate applies pending run ledger migrations and lists every migration
with its state. With --down it rolls back the most recently applied
migration instead, which drops the data that migration created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(configPath(), true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			db, err := a.openLedgerDB(ctx)
			if err != nil {
				return err
			}
			if db == nil {
				return errLedgerDisabled
			}

			if down {
				if err := db.MigrateDown(ctx); err != nil {
					return fmt.Errorf("rolling back ledger migration: %w", err)
				}
				a.log.Info("ledger migration rolled back", "path", db.Path())
			} else if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("running ledger migrations: %w", err)
			}

			applied, pending, err := db.GetMigrationStatus(ctx)
			if err != nil {
				return err
			}
			return printMigrations(cmd.OutOrStdout(), applied, pending)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

// printMigrations lists applied migrations, then pending ones.
func printMigrations(w io.Writer, applied []database.MigrationRecord, pending []database.Migration) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tDETAIL")
	for _, m := range applied {
		fmt.Fprintf(tw, "%s\tapplied\t%s\n", m.Version, m.AppliedAt.UTC().Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\tpending\t%s\n", m.Version, m.Name)
	}
	return tw.Flush()
}

// printHistory writes runs as an aligned table, newest first.
func printHistory(w io.Writer, runs []ledger.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODE\tSTATUS\tSTARTED\tDURATION\tTAGS\tSKIPPED\tFEEDERS\tERROR")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			r.ID,
			r.Mode,
			r.Status,
			r.StartedAt.Format(time.RFC3339),
			duration,
			r.TagsFetched, r.TagsTotal,
			r.TagsSkipped,
			r.FeedersWritten,
			r.Error,
		)
	}
	return tw.Flush()
}

func newCheckCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration and connectivity",
		Long: `check loads the configuration and contacts the historian, the warehouse,
the run ledger and every enabled sink. It exits non-zero if any enabled
dependency is unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(configPath(), true)
			if err != nil {
				return err
			}
			defer a.close()
			return a.check(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// check contacts each dependency and prints one line per result.
func (a *app) check(ctx context.Context, w io.Writer) error {
	var failed []error
	report := func(name string, err error, detail string) {
		switch {
		case errors.Is(err, errSkipped):
			fmt.Fprintf(w, "-    %-10s %s\n", name, "disabled")
		case err != nil:
			fmt.Fprintf(w, "FAIL %-10s %v\n", name, err)
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
		default:
			fmt.Fprintf(w, "ok   %-10s %s\n", name, detail)
		}
	}

	if client, err := historian.New(a.cfg.Historian, a.cfg.Run.Window); err != nil {
		report("historian", err, "")
	} else {
		report("historian", client.HealthCheck(ctx), a.cfg.Historian.BaseURL)
	}

	if source, err := a.openCatalog(ctx); err != nil {
		report("warehouse", err, "")
	} else {
		mappings, loadErr := source.Load(ctx)
		report("warehouse", loadErr, fmt.Sprintf("%s, %d tags", a.cfg.Warehouse.Driver, len(mappings)))
	}

	db, _, err := a.openLedger(ctx)
	switch {
	case err != nil:
		report("ledger", err, "")
	case db == nil:
		report("ledger", errSkipped, "")
	default:
		applied, pending, statusErr := db.GetMigrationStatus(ctx)
		if statusErr == nil {
			statusErr = db.HealthCheck(ctx)
		}
		report("ledger", statusErr, fmt.Sprintf("%s, %d migrations applied, %d pending",
			db.Path(), len(applied), len(pending)))
	}

	mqttClient, err := a.connectMQTT()
	switch {
	case errors.Is(err, mqtt.ErrDisabled):
		report("mqtt", errSkipped, "")
	case err != nil:
		report("mqtt", err, "")
	default:
		report("mqtt", mqttClient.HealthCheck(ctx), mqttClient.Topics().Prefix())
	}

	influxClient, err := a.connectInfluxDB(ctx)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		report("influxdb", errSkipped, "")
	case err != nil:
		report("influxdb", err, "")
	default:
		report("influxdb", influxClient.HealthCheck(ctx), a.cfg.InfluxDB.Bucket)
	}

	err = metrics.New(a.cfg.Metrics).HealthCheck(ctx)
	if errors.Is(err, metrics.ErrDisabled) {
		err = errSkipped
	}
	report("metrics", err, a.cfg.Metrics.PushgatewayURL)

	return errors.Join(failed...)
}

// errSkipped marks a disabled dependency in check output.
var errSkipped = errors.New("disabled")
