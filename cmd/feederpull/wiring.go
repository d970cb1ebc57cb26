package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/feederpull/internal/catalog"
	"github.com/nerrad567/feederpull/internal/feeder"
	"github.com/nerrad567/feederpull/internal/historian"
	"github.com/nerrad567/feederpull/internal/infrastructure/config"
	"github.com/nerrad567/feederpull/internal/infrastructure/database"
	"github.com/nerrad567/feederpull/internal/infrastructure/influxdb"
	"github.com/nerrad567/feederpull/internal/infrastructure/logging"
	"github.com/nerrad567/feederpull/internal/infrastructure/metrics"
	"github.com/nerrad567/feederpull/internal/infrastructure/mqtt"
	"github.com/nerrad567/feederpull/internal/infrastructure/warehouse"
	"github.com/nerrad567/feederpull/internal/ledger"
	"github.com/nerrad567/feederpull/internal/pipeline"
)

// app owns the infrastructure acquired by one command. Everything opened
// through it is released by close, in reverse order.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	closers []func()
}

// bootstrap loads configuration and creates the logger.
//
// Commands that print data on stdout pass dataOnStdout so log lines go to
// stderr and no status log file is created.
func bootstrap(configPath string, dataOnStdout bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dataOnStdout {
		cfg.Logging.Output = "stderr"
		cfg.Logging.File.Enabled = false
	}

	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return nil, fmt.Errorf("initialising logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() {
		if closeErr := log.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing status log: %v\n", closeErr)
		}
	})

	log.Debug("configuration loaded", "path", configPath, "commit", commit, "build_date", date)
	if path := log.StatusFile(); path != "" {
		log.Info("status log file opened", "path", path)
	}
	return a, nil
}

// onClose registers a named resource for release.
func (a *app) onClose(name string, closeFn func() error) {
	a.closers = append(a.closers, func() {
		a.log.Debug("closing " + name)
		if err := closeFn(); err != nil {
			a.log.Error("error closing "+name, "error", err)
		}
	})
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openCatalog connects to the warehouse and returns the tag catalog source.
func (a *app) openCatalog(ctx context.Context) (*catalog.SQLSource, error) {
	db, err := warehouse.Open(ctx, a.cfg.Warehouse)
	if err != nil {
		return nil, fmt.Errorf("opening warehouse: %w", err)
	}
	a.onClose("warehouse", db.Close)
	a.log.Info("warehouse connected", "driver", a.cfg.Warehouse.Driver)

	source := catalog.NewSQLSource(db, a.cfg.Warehouse.Query)
	source.SetLogger(a.log.With("component", "catalog"))
	return source, nil
}

// openLedgerDB opens the run ledger database without migrating it. It
// returns nil when the ledger is disabled.
func (a *app) openLedgerDB(ctx context.Context) (*database.DB, error) {
	if !a.cfg.Database.Enabled {
		return nil, nil
	}

	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	a.onClose("ledger database", db.Close)
	return db, nil
}

// openLedger opens and migrates the run ledger. It returns nil when the
// ledger is disabled.
func (a *app) openLedger(ctx context.Context) (*database.DB, *ledger.Repository, error) {
	db, err := a.openLedgerDB(ctx)
	if err != nil || db == nil {
		return nil, nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		return nil, nil, fmt.Errorf("running ledger migrations: %w", err)
	}
	a.log.Debug("ledger ready", "path", db.Path())
	return db, ledger.NewRepository(db.DB), nil
}

// connectMQTT connects the run event publisher.
//
// Returns:
//   - *mqtt.Client: Connected client, closed with the app
//   - error: mqtt.ErrDisabled when MQTT is off, or the connect failure
func (a *app) connectMQTT() (*mqtt.Client, error) {
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return nil, err
	}
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT connection lost", "error", err)
	})
	a.onClose("MQTT", client.Close)
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"topic_prefix", client.Topics().Prefix(),
	)
	return client, nil
}

// connectInfluxDB connects the sample mirror. It returns
// influxdb.ErrDisabled when the mirror is off.
func (a *app) connectInfluxDB(ctx context.Context) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
	if err != nil {
		return nil, err
	}
	client.SetOnError(func(err error) {
		a.log.Warn("InfluxDB write failed", "error", err)
	})
	a.onClose("InfluxDB", func() error {
		err := client.Close()
		a.log.Info("InfluxDB mirror closed", "points_queued", client.Queued())
		return err
	})
	a.log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
	return client, nil
}

// sinks are the optional outputs attached to a runner.
type sinks struct {
	influx  *influxdb.Client
	metrics *metrics.Recorder
}

// newRunner wires the catalog, historian, store and every enabled sink.
func (a *app) newRunner(ctx context.Context) (*pipeline.Runner, *sinks, error) {
	policy, err := feeder.ParseFillPolicy(a.cfg.Run.FillPolicy)
	if err != nil {
		return nil, nil, err
	}

	source, err := a.openCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	fetcher, err := historian.New(a.cfg.Historian, a.cfg.Run.Window)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug("historian client ready",
		"base_url", a.cfg.Historian.BaseURL,
		"timeout", a.cfg.GetHistorianTimeout().String(),
	)

	store := feeder.NewStore(a.cfg.Output.RawDir, a.cfg.Output.Dir)
	runner := pipeline.NewRunner(source, fetcher, store, pipeline.Options{
		Version:    version,
		Window:     a.cfg.Run.Window,
		FillPolicy: policy,
		StageRaw:   a.cfg.Run.StageRaw,
	})
	runner.SetLogger(a.log.With("component", "pipeline"))

	_, repo, err := a.openLedger(ctx)
	if err != nil {
		return nil, nil, err
	}
	if repo != nil {
		runner.SetLedger(repo)
	}

	// Events and the mirror are optional: a failed connection only warns.
	s := &sinks{}
	mqttClient, err := a.connectMQTT()
	switch {
	case err == nil:
		runner.SetNotifier(mqttNotifier{pub: mqttClient})
	case !errors.Is(err, mqtt.ErrDisabled):
		a.log.Warn("MQTT unavailable, run events disabled", "error", err)
	}
	influxClient, err := a.connectInfluxDB(ctx)
	switch {
	case err == nil:
		s.influx = influxClient
		runner.SetMirror(influxMirror{w: influxClient})
	case !errors.Is(err, influxdb.ErrDisabled):
		a.log.Warn("InfluxDB unavailable, sample mirror disabled", "error", err)
	}
	if a.cfg.Metrics.Enabled {
		s.metrics = metrics.New(a.cfg.Metrics)
		runner.SetMetrics(s.metrics)
	}
	return runner, s, nil
}

// report hands the finished run to sinks that only want the outcome.
func (a *app) report(ctx context.Context, s *sinks, sum *pipeline.Summary) {
	if sum == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if s.influx != nil {
		s.influx.WriteRun(influxdb.RunStats{
			RunID:          sum.RunID,
			Status:         sum.Status,
			TagsFetched:    sum.TagsFetched,
			TagsSkipped:    sum.TagsSkipped,
			FeedersWritten: sum.FeedersWritten,
			Duration:       sum.Duration(),
		}, sum.FinishedAt)
		s.influx.Flush()
		a.log.Debug("InfluxDB mirror flushed", "points_queued", s.influx.Queued())
	}
	if s.metrics != nil {
		if err := s.metrics.Push(ctx); err != nil {
			a.log.Warn("pushing metrics failed", "error", err)
		} else {
			a.log.Debug("metrics pushed", "pushgateway", a.cfg.Metrics.PushgatewayURL)
		}
	}
}
