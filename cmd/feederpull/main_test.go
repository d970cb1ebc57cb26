package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/feederpull/internal/ledger"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// testEnv is a temp directory holding a catalog, a config and the run outputs.
type testEnv struct {
	dir        string
	configPath string
	outputDir  string
	rawDir     string
}

// newTestEnv seeds a SQLite catalog, starts a fake historian and writes a
// config pointing at both.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	catalogPath := filepath.Join(dir, "catalog.db")
	seed, err := sql.Open("sqlite3", catalogPath)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	_, err = seed.Exec(`
		CREATE TABLE af_feeder_mapping (
			circuit_id     TEXT,
			pi_tag_web_id  TEXT,
			pi_tag_name    TEXT,
			mapping_method TEXT
		);
		INSERT INTO af_feeder_mapping VALUES
			('F1', 'w-1-kw',  'F1.KW',   'AUTO'),
			('F1', 'w-1-amp', 'F1.AMPS', 'AUTO'),
			('F2', 'w-2-kw',  'F2.KW',   'AUTO');
	`)
	seed.Close()
	if err != nil {
		t.Fatalf("seeding catalog: %v", err)
	}

	historian := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/piwebapi/":
			_, _ = w.Write([]byte(`{"Links":{"Self":"/piwebapi"}}`))
		case "/piwebapi/streams/w-1-kw/summary":
			_, _ = w.Write([]byte(`{"Items":[
				{"Value":{"Timestamp":"2024-01-01T00:00:00Z","Value":10.5}},
				{"Value":{"Timestamp":"2024-01-01T01:00:00Z","Value":11}}]}`))
		case "/piwebapi/streams/w-1-amp/summary":
			_, _ = w.Write([]byte(`{"Items":[
				{"Value":{"Timestamp":"2024-01-01T00:00:00Z","Value":null}},
				{"Value":{"Timestamp":"2024-01-01T01:00:00Z","Value":42}}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"Errors":["stream unavailable"]}`))
		}
	}))
	t.Cleanup(historian.Close)

	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		outputDir:  filepath.Join(dir, "output"),
		rawDir:     filepath.Join(dir, "output", "raw"),
	}

	config := `
run:
  fill_policy: reject
  stage_raw: true

historian:
  base_url: "` + historian.URL + `/piwebapi"
  timeout: 5

warehouse:
  driver: sqlite3
  path: "` + catalogPath + `"

output:
  dir: "` + env.outputDir + `"
  raw_dir: "` + env.rawDir + `"

database:
  enabled: true
  path: "` + filepath.Join(dir, "ledger.db") + `"

logging:
  level: error
  output: stderr
`
	if err := os.WriteFile(env.configPath, []byte(config), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return env
}

// execute runs the command tree with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return records
}

// =============================================================================
// Config Resolution Tests
// =============================================================================

func TestResolveConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(configEnvVar, "/etc/feederpull/env.yaml")
		if got := resolveConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
			t.Errorf("resolveConfigPath() = %q, want flag path", got)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(configEnvVar, "/etc/feederpull/env.yaml")
		if got := resolveConfigPath(""); got != "/etc/feederpull/env.yaml" {
			t.Errorf("resolveConfigPath() = %q, want env path", got)
		}
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv(configEnvVar, "")
		if got := resolveConfigPath(""); got != defaultConfigPath {
			t.Errorf("resolveConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	_, err := execute(t, "--config", "/nonexistent/path/config.yaml", "run")
	if err == nil {
		t.Fatal("run should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want a config loading error", err)
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestRun_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	if _, err := execute(t, "--config", env.configPath, "run"); err != nil {
		t.Fatalf("run error = %v", err)
	}

	want := [][]string{
		{"Timestamp", "F1.KW", "F1.AMPS"},
		{"2024-01-01T00:00:00Z", "10.5", "0"},
		{"2024-01-01T01:00:00Z", "11", "42"},
	}
	if diff := cmp.Diff(want, readCSV(t, filepath.Join(env.outputDir, "F1.csv"))); diff != "" {
		t.Errorf("F1.csv mismatch (-want +got):\n%s", diff)
	}

	// F2's only tag failed, so no file is written for it.
	if _, err := os.Stat(filepath.Join(env.outputDir, "F2.csv")); !os.IsNotExist(err) {
		t.Errorf("F2.csv should not exist, stat error = %v", err)
	}

	staged, err := filepath.Glob(filepath.Join(env.rawDir, "*.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(staged) != 0 {
		t.Errorf("raw artifacts left behind: %v", staged)
	}

	out, err := execute(t, "--config", env.configPath, "history")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("history lines = %d, want header + 1 run:\n%s", len(lines), out)
	}
	for _, want := range []string{ledger.ModeRun, ledger.StatusSucceeded, "2/3"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("history row %q missing %q", lines[1], want)
		}
	}

	runID := strings.Fields(lines[1])[0]
	out, err = execute(t, "--config", env.configPath, "history", "--run", runID)
	if err != nil {
		t.Fatalf("history --run error = %v", err)
	}
	for _, want := range []string{
		runID,
		"2 fetched, 1 skipped of 3",
		"1 written, 1 skipped",
		"Fetches (3)",
		"F2       F2.KW    failed",
		"stream unavailable",
		"Feeder files (1)",
		filepath.Join(env.outputDir, "F1.csv"),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("history --run output missing %q:\n%s", want, out)
		}
	}
}

func TestHistory_UnknownRun(t *testing.T) {
	env := newTestEnv(t)

	if _, err := execute(t, "--config", env.configPath, "history", "--run", "no-such-run"); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Errorf("history --run error = %v, want ledger.ErrRunNotFound", err)
	}
}

func TestMigrate_UpAndDown(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configPath, "migrate")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "20260301_090000  applied") {
		t.Errorf("migrate should list the applied ledger migration:\n%s", out)
	}

	out, err = execute(t, "--config", env.configPath, "migrate", "--down")
	if err != nil {
		t.Fatalf("migrate --down error = %v", err)
	}
	if !strings.Contains(out, "20260301_090000  pending  run_ledger") {
		t.Errorf("rolled back migration should be pending:\n%s", out)
	}

	// Any ledger command migrates again before use.
	if _, err := execute(t, "--config", env.configPath, "history"); err != nil {
		t.Errorf("history after rollback error = %v", err)
	}
}

func TestRun_IsDefaultCommand(t *testing.T) {
	env := newTestEnv(t)

	if _, err := execute(t, "--config", env.configPath); err != nil {
		t.Fatalf("root command error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.outputDir, "F1.csv")); err != nil {
		t.Errorf("F1.csv not written: %v", err)
	}
}

func TestAggregate_RebuildsFromStagedFiles(t *testing.T) {
	env := newTestEnv(t)

	if err := os.MkdirAll(env.rawDir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw := "Timestamp,Recorded Value\n2024-01-01T00:00:00Z,7\n"
	if err := os.WriteFile(filepath.Join(env.rawDir, "F2_F2.KW.csv"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "--config", env.configPath, "aggregate"); err != nil {
		t.Fatalf("aggregate error = %v", err)
	}

	want := [][]string{
		{"Timestamp", "F2.KW"},
		{"2024-01-01T00:00:00Z", "7"},
	}
	if diff := cmp.Diff(want, readCSV(t, filepath.Join(env.outputDir, "F2.csv"))); diff != "" {
		t.Errorf("F2.csv mismatch (-want +got):\n%s", diff)
	}

	out, err := execute(t, "--config", env.configPath, "history", "--limit", "1")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, ledger.ModeRecover) {
		t.Errorf("history should list the recovery run:\n%s", out)
	}
}

func TestCatalog_PrintsCSV(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configPath, "catalog")
	if err != nil {
		t.Fatalf("catalog error = %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("catalog output is not CSV: %v\n%s", err, out)
	}
	want := [][]string{
		{"CIRCUIT_ID", "PI_TAG_WEB_ID", "PI_TAG_NAME"},
		{"F1", "w-1-kw", "F1.KW"},
		{"F1", "w-1-amp", "F1.AMPS"},
		{"F2", "w-2-kw", "F2.KW"},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestHistory_LedgerDisabled(t *testing.T) {
	env := newTestEnv(t)

	data, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatal(err)
	}
	data = bytes.Replace(data, []byte("enabled: true"), []byte("enabled: false"), 1)
	if err := os.WriteFile(env.configPath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "--config", env.configPath, "history"); !errors.Is(err, errLedgerDisabled) {
		t.Errorf("history error = %v, want errLedgerDisabled", err)
	}
}

func TestCheck(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, "--config", env.configPath, "check")
	if err != nil {
		t.Fatalf("check error = %v\n%s", err, out)
	}
	for _, want := range []string{
		"ok   historian",
		"ok   warehouse  sqlite3, 3 tags",
		"ok   ledger",
		"-    mqtt       disabled",
		"-    influxdb   disabled",
		"-    metrics    disabled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestCheck_ReportsSinkErrors(t *testing.T) {
	env := newTestEnv(t)

	pushgateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/-/healthy" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer pushgateway.Close()

	influx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	influxURL := influx.URL
	influx.Close()

	sinks := `
influxdb:
  enabled: true
  url: "` + influxURL + `"
  org: "grid"
  bucket: "feeders"

metrics:
  enabled: true
  pushgateway_url: "` + pushgateway.URL + `"
`
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.WriteString(sinks)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", env.configPath, "check")
	if err == nil {
		t.Fatalf("check should fail when InfluxDB is unreachable:\n%s", out)
	}
	if !strings.Contains(out, "FAIL influxdb   influxdb: connection failed: ping failed") {
		t.Errorf("check should print the connect error:\n%s", out)
	}
	if !strings.Contains(out, "ok   metrics    "+pushgateway.URL) {
		t.Errorf("check should report the healthy pushgateway:\n%s", out)
	}
}

func TestCheck_WarehouseMissing(t *testing.T) {
	env := newTestEnv(t)
	if err := os.Remove(filepath.Join(env.dir, "catalog.db")); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", env.configPath, "check")
	if err == nil {
		t.Fatal("check should fail when the warehouse is unreachable")
	}
	if !strings.Contains(out, "FAIL warehouse") {
		t.Errorf("check output should report the warehouse:\n%s", out)
	}
}

// =============================================================================
// Output Formatting Tests
// =============================================================================

func TestPrintHistory(t *testing.T) {
	started := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	runs := []ledger.Run{
		{
			ID: "run-2", Mode: ledger.ModeRun, Status: ledger.StatusRunning,
			StartedAt: started.Add(24 * time.Hour), TagsTotal: 10,
		},
		{
			ID: "run-1", Mode: ledger.ModeRun, Status: ledger.StatusFailed,
			StartedAt: started, FinishedAt: started.Add(90 * time.Second),
			TagsTotal: 10, TagsFetched: 8, TagsSkipped: 2, FeedersWritten: 3,
			Error: "aggregate failed",
		},
	}

	var buf bytes.Buffer
	if err := printHistory(&buf, runs); err != nil {
		t.Fatalf("printHistory() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "RUN ID") {
		t.Errorf("header = %q", lines[0])
	}
	fields := strings.Fields(lines[1])
	if fields[4] != "-" {
		t.Errorf("running run duration = %q, want -", fields[4])
	}
	for _, want := range []string{"run-1", "1m30s", "8/10", "aggregate failed", "2026-03-01T02:00:00Z"} {
		if !strings.Contains(lines[2], want) {
			t.Errorf("row %q missing %q", lines[2], want)
		}
	}
}
