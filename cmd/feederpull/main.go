// feederpull - PI Web API feeder puller
//
// feederpull reads the feeder tag catalog from the data warehouse, pulls the
// summary window of every tag from the PI Web API, and writes one wide CSV
// per feeder circuit. It is a batch job: run it from cron or a systemd timer.
//
// Commands:
//
//	feederpull [run]      full batch run (default)
//	feederpull aggregate  rebuild feeder files from staged raw artifacts
//	feederpull catalog    print the tag catalog as CSV
//	feederpull history    list recent runs from the ledger
//	feederpull check      verify configuration and connectivity
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/feederpull/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when neither --config nor FEEDERPULL_CONFIG is set.
	defaultConfigPath = "configs/config.yaml"

	configEnvVar = "FEEDERPULL_CONFIG"
)

func main() {
	// SIGINT/SIGTERM cancel the run between tags.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand performs a full batch run.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "feederpull",
		Short: "Pull feeder time series from the PI Web API into per-circuit CSV files",
		Long: `feederpull loads the feeder tag catalog from the warehouse, fetches the
configured summary window for every tag from the PI Web API, and writes one
CSV per circuit with a Timestamp column and one column per tag.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default %s, or $%s)", defaultConfigPath, configEnvVar))

	resolve := func() string { return resolveConfigPath(configPath) }

	runCmd := newRunCmd(resolve)
	root.RunE = runCmd.RunE
	root.AddCommand(
		runCmd,
		newAggregateCmd(resolve),
		newCatalogCmd(resolve),
		newHistoryCmd(resolve),
		newMigrateCmd(resolve),
		newCheckCmd(resolve),
	)
	return root
}

// resolveConfigPath returns the configuration file path: the --config flag,
// then FEEDERPULL_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}
