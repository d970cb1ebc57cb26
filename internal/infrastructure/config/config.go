package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/feederpull/internal/feeder"
)

// Config is the root configuration structure for feederpull.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Run       RunConfig       `yaml:"run"`
	Historian HistorianConfig `yaml:"historian"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Output    OutputConfig    `yaml:"output"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RunConfig controls what a batch run requests and how feeders are assembled.
type RunConfig struct {
	Window WindowConfig `yaml:"window"`

	// FillPolicy decides what happens when the tags of one circuit do not
	// share the same timestamps: "reject" (the default), "zero" or "forward".
	// Matching ignores case.
	FillPolicy string `yaml:"fill_policy"`

	// StageRaw writes each fetched tag to the raw directory before
	// aggregation so an interrupted run can be recovered.
	StageRaw bool `yaml:"stage_raw"`
}

// WindowConfig is the summary window requested from the historian.
// Values are passed to the PI Web API verbatim, so PI time expressions
// such as "*-1d" are accepted as well as dates.
type WindowConfig struct {
	Start           string `yaml:"start"`
	End             string `yaml:"end"`
	SummaryType     string `yaml:"summary_type"`
	SummaryDuration string `yaml:"summary_duration"`
	Interval        string `yaml:"interval"`
}

// HistorianConfig contains PI Web API connection settings.
type HistorianConfig struct {
	BaseURL            string `yaml:"base_url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	Timeout            int    `yaml:"timeout"` // seconds
}

// WarehouseConfig contains the tag catalog connection settings.
type WarehouseConfig struct {
	// Driver is "mysql" or "sqlite3".
	Driver   string            `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	DBName   string            `yaml:"dbname"`
	Params   map[string]string `yaml:"params"`

	// Path is the catalog file when Driver is "sqlite3".
	Path string `yaml:"path"`

	// Query returns CIRCUIT_ID, PI_TAG_WEB_ID and PI_TAG_NAME columns.
	Query string `yaml:"query"`
}

// OutputConfig contains filesystem locations for artifacts.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	RawDir string `yaml:"raw_dir"`
}

// DatabaseConfig contains the SQLite run ledger settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus Pushgateway settings.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains the optional status log file settings.
// A new timestamped file is created in Dir for every process.
type FileLoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// DefaultCatalogQuery selects every mapped feeder tag except instantaneous
// values, ordered so that all tags of one circuit are adjacent.
const DefaultCatalogQuery = `SELECT circuit_id, pi_tag_web_id, pi_tag_name
FROM af_feeder_mapping
WHERE mapping_method <> 'UNMAPPED'
  AND pi_tag_name NOT LIKE '%.IV'
ORDER BY circuit_id`

// envFileVar names the variable that points at an alternative .env file.
const envFileVar = "FEEDERPULL_ENV_FILE"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. A .env file, if present (never overrides variables already set)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: FEEDERPULL_SECTION_KEY
// For example: FEEDERPULL_HISTORIAN_PASSWORD, FEEDERPULL_OUTPUT_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If a file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv populates the process environment from a .env file.
// A missing default ./.env is not an error; a missing explicit file is.
func loadDotEnv() error {
	path := os.Getenv(envFileVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Window: WindowConfig{
				Start:           "2024-01-01",
				End:             "2025-01-01",
				SummaryType:     "Average",
				SummaryDuration: "1h",
				Interval:        "1h",
			},
			FillPolicy: "reject",
			StageRaw:   true,
		},
		Historian: HistorianConfig{
			InsecureSkipVerify: true,
			Timeout:            120,
		},
		Warehouse: WarehouseConfig{
			Driver: "mysql",
			Port:   3306,
			Query:  DefaultCatalogQuery,
		},
		Output: OutputConfig{
			Dir:    "./output",
			RawDir: "./output/raw",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/feederpull.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "feederpull",
			},
			QoS:         1,
			TopicPrefix: "feederpull",
		},
		Metrics: MetricsConfig{
			Job: "feederpull",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				Dir: "./Status Logs",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FEEDERPULL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Historian
	if v := os.Getenv("FEEDERPULL_HISTORIAN_URL"); v != "" {
		cfg.Historian.BaseURL = v
	}
	if v := os.Getenv("FEEDERPULL_HISTORIAN_USERNAME"); v != "" {
		cfg.Historian.Username = v
	}
	if v := os.Getenv("FEEDERPULL_HISTORIAN_PASSWORD"); v != "" {
		cfg.Historian.Password = v
	}

	// Warehouse
	if v := os.Getenv("FEEDERPULL_WAREHOUSE_HOST"); v != "" {
		cfg.Warehouse.Host = v
	}
	if v := os.Getenv("FEEDERPULL_WAREHOUSE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("FEEDERPULL_WAREHOUSE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	// Output
	if v := os.Getenv("FEEDERPULL_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("FEEDERPULL_OUTPUT_RAW_DIR"); v != "" {
		cfg.Output.RawDir = v
	}

	// Database
	if v := os.Getenv("FEEDERPULL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FEEDERPULL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FEEDERPULL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FEEDERPULL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FEEDERPULL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Metrics
	if v := os.Getenv("FEEDERPULL_METRICS_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushgatewayURL = v
	}
}

// validSummaryTypes are the PI Web API summary types a run may request.
var validSummaryTypes = map[string]bool{
	"Total":            true,
	"Average":          true,
	"Minimum":          true,
	"Maximum":          true,
	"Range":            true,
	"StdDev":           true,
	"PopulationStdDev": true,
	"Count":            true,
	"PercentGood":      true,
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Run
	w := c.Run.Window
	if w.Start == "" || w.End == "" {
		errs = append(errs, "run.window.start and run.window.end are required")
	}
	if !validSummaryTypes[w.SummaryType] {
		errs = append(errs, fmt.Sprintf("run.window.summary_type %q is not a PI summary type", w.SummaryType))
	}
	if w.SummaryDuration == "" || w.Interval == "" {
		errs = append(errs, "run.window.summary_duration and run.window.interval are required")
	}
	if _, err := feeder.ParseFillPolicy(c.Run.FillPolicy); err != nil {
		errs = append(errs, fmt.Sprintf("run.fill_policy %q must be reject, zero, or forward", c.Run.FillPolicy))
	}

	// Historian
	if c.Historian.BaseURL == "" {
		errs = append(errs, "historian.base_url is required (set FEEDERPULL_HISTORIAN_URL)")
	}
	if c.Historian.Timeout < 0 {
		errs = append(errs, "historian.timeout must not be negative")
	}

	// Warehouse
	switch c.Warehouse.Driver {
	case "mysql":
		if c.Warehouse.Host == "" || c.Warehouse.DBName == "" {
			errs = append(errs, "warehouse.host and warehouse.dbname are required for mysql")
		}
	case "sqlite3":
		if c.Warehouse.Path == "" {
			errs = append(errs, "warehouse.path is required for sqlite3")
		}
	default:
		errs = append(errs, "warehouse.driver must be mysql or sqlite3")
	}
	if strings.TrimSpace(c.Warehouse.Query) == "" {
		errs = append(errs, "warehouse.query is required")
	}

	// Output
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}
	if c.Run.StageRaw && c.Output.RawDir == "" {
		errs = append(errs, "output.raw_dir is required when run.stage_raw is set")
	}

	// Optional sinks
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.PushgatewayURL == "" {
		errs = append(errs, "metrics.pushgateway_url is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetHistorianTimeout returns the historian request timeout as a Duration.
// Zero means no client-side timeout.
func (c *Config) GetHistorianTimeout() time.Duration {
	return time.Duration(c.Historian.Timeout) * time.Second
}
