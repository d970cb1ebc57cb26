package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validConfig returns a config that passes validation, for table tests to mutate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Historian.BaseURL = "https://pi.example.com/piwebapi"
	cfg.Warehouse.Host = "warehouse.example.com"
	cfg.Warehouse.DBName = "grid"
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
run:
  window:
    start: "2024-06-01"
    end: "2024-07-01"
    summary_type: "Maximum"
    summary_duration: "15m"
    interval: "15m"
  fill_policy: "forward"
historian:
  base_url: "https://pi.example.com/piwebapi"
  username: "svc_pi"
warehouse:
  driver: "sqlite3"
  path: "/data/catalog.db"
output:
  dir: "/tmp/feeders"
  raw_dir: "/tmp/feeders/raw"
database:
  path: "/tmp/test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Window.SummaryType != "Maximum" {
		t.Errorf("Run.Window.SummaryType = %q, want %q", cfg.Run.Window.SummaryType, "Maximum")
	}
	if cfg.Run.FillPolicy != "forward" {
		t.Errorf("Run.FillPolicy = %q, want %q", cfg.Run.FillPolicy, "forward")
	}
	if cfg.Historian.Username != "svc_pi" {
		t.Errorf("Historian.Username = %q, want %q", cfg.Historian.Username, "svc_pi")
	}
	if cfg.Warehouse.Path != "/data/catalog.db" {
		t.Errorf("Warehouse.Path = %q, want %q", cfg.Warehouse.Path, "/data/catalog.db")
	}
	if cfg.Output.Dir != "/tmp/feeders" {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, "/tmp/feeders")
	}

	// Unset keys keep their defaults.
	if cfg.Warehouse.Query != DefaultCatalogQuery {
		t.Errorf("Warehouse.Query = %q, want default query", cfg.Warehouse.Query)
	}
	if !cfg.Historian.InsecureSkipVerify {
		t.Error("Historian.InsecureSkipVerify should default to true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
historian:
  base_url: ""
warehouse:
  driver: "sqlite3"
  path: "/data/catalog.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty historian.base_url, got nil")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "pi.env")
	envContent := "FEEDERPULL_HISTORIAN_URL=https://from-env-file/piwebapi\nFEEDERPULL_HISTORIAN_PASSWORD=hunter2\n"
	if err := os.WriteFile(envPath, []byte(envContent), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv(envFileVar, envPath)

	// Register cleanup for the keys godotenv will set, then clear them so
	// the file values are applied.
	for _, key := range []string{"FEEDERPULL_HISTORIAN_URL", "FEEDERPULL_HISTORIAN_PASSWORD"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	configPath := writeConfig(t, `
warehouse:
  driver: "sqlite3"
  path: "/data/catalog.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Historian.BaseURL != "https://from-env-file/piwebapi" {
		t.Errorf("Historian.BaseURL = %q, want value from env file", cfg.Historian.BaseURL)
	}
	if cfg.Historian.Password != "hunter2" {
		t.Errorf("Historian.Password = %q, want %q", cfg.Historian.Password, "hunter2")
	}
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	t.Setenv(envFileVar, filepath.Join(t.TempDir(), "missing.env"))

	configPath := writeConfig(t, `
historian:
  base_url: "https://pi.example.com/piwebapi"
warehouse:
  driver: "sqlite3"
  path: "/data/catalog.db"
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for missing explicit env file, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing historian URL",
			mutate:  func(c *Config) { c.Historian.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Historian.Timeout = -1 },
			wantErr: true,
		},
		{
			name:    "unknown summary type",
			mutate:  func(c *Config) { c.Run.Window.SummaryType = "Median" },
			wantErr: true,
		},
		{
			name:    "empty window",
			mutate:  func(c *Config) { c.Run.Window.Start = "" },
			wantErr: true,
		},
		{
			name:    "unknown fill policy",
			mutate:  func(c *Config) { c.Run.FillPolicy = "interpolate" },
			wantErr: true,
		},
		{
			name:    "fill policy is case insensitive",
			mutate:  func(c *Config) { c.Run.FillPolicy = " Zero" },
			wantErr: false,
		},
		{
			name:    "empty fill policy rejects misalignment",
			mutate:  func(c *Config) { c.Run.FillPolicy = "" },
			wantErr: false,
		},
		{
			name:    "unknown warehouse driver",
			mutate:  func(c *Config) { c.Warehouse.Driver = "postgres" },
			wantErr: true,
		},
		{
			name:    "mysql without host",
			mutate:  func(c *Config) { c.Warehouse.Host = "" },
			wantErr: true,
		},
		{
			name: "sqlite3 without path",
			mutate: func(c *Config) {
				c.Warehouse.Driver = "sqlite3"
				c.Warehouse.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "blank query",
			mutate:  func(c *Config) { c.Warehouse.Query = "   " },
			wantErr: true,
		},
		{
			name:    "missing output dir",
			mutate:  func(c *Config) { c.Output.Dir = "" },
			wantErr: true,
		},
		{
			name:    "staging without raw dir",
			mutate:  func(c *Config) { c.Output.RawDir = "" },
			wantErr: true,
		},
		{
			name: "no staging without raw dir",
			mutate: func(c *Config) {
				c.Run.StageRaw = false
				c.Output.RawDir = ""
			},
			wantErr: false,
		},
		{
			name: "ledger disabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = false
				c.Database.Path = ""
			},
			wantErr: false,
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
		{
			name:    "metrics enabled without pushgateway",
			mutate:  func(c *Config) { c.Metrics.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Historian.BaseURL = ""
	cfg.Run.FillPolicy = "bogus"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"historian.base_url", "run.fill_policy"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q does not mention %q", err, want)
		}
	}
}

func TestConfig_GetHistorianTimeout(t *testing.T) {
	cfg := &Config{Historian: HistorianConfig{Timeout: 45}}

	if got := cfg.GetHistorianTimeout().Seconds(); got != 45 {
		t.Errorf("GetHistorianTimeout() = %v, want 45", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("FEEDERPULL_HISTORIAN_URL", "https://pi.override/piwebapi")
	t.Setenv("FEEDERPULL_HISTORIAN_USERNAME", "piuser")
	t.Setenv("FEEDERPULL_HISTORIAN_PASSWORD", "pipass")
	t.Setenv("FEEDERPULL_WAREHOUSE_PASSWORD", "dbpass")
	t.Setenv("FEEDERPULL_OUTPUT_DIR", "/custom/output")
	t.Setenv("FEEDERPULL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FEEDERPULL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FEEDERPULL_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FEEDERPULL_METRICS_PUSHGATEWAY_URL", "http://push:9091")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Historian.BaseURL", cfg.Historian.BaseURL, "https://pi.override/piwebapi"},
		{"Historian.Username", cfg.Historian.Username, "piuser"},
		{"Historian.Password", cfg.Historian.Password, "pipass"},
		{"Warehouse.Password", cfg.Warehouse.Password, "dbpass"},
		{"Output.Dir", cfg.Output.Dir, "/custom/output"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Metrics.PushgatewayURL", cfg.Metrics.PushgatewayURL, "http://push:9091"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	w := cfg.Run.Window
	if w.Start != "2024-01-01" || w.End != "2025-01-01" {
		t.Errorf("default window = %s..%s, want 2024-01-01..2025-01-01", w.Start, w.End)
	}
	if w.SummaryType != "Average" || w.SummaryDuration != "1h" || w.Interval != "1h" {
		t.Errorf("default summary = %s/%s/%s, want Average/1h/1h", w.SummaryType, w.SummaryDuration, w.Interval)
	}
	if cfg.Run.FillPolicy != "reject" {
		t.Errorf("default FillPolicy = %q, want reject", cfg.Run.FillPolicy)
	}
	if cfg.Historian.Timeout != 120 {
		t.Errorf("default Historian.Timeout = %d, want 120", cfg.Historian.Timeout)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}
