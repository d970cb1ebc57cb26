package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run modes: a full fetch run, or a recovery from staged raw artifacts.
const (
	ModeRun     = "run"
	ModeRecover = "recover"
)

// Fetch outcomes.
const (
	FetchFetched = "fetched"
	FetchEmpty   = "empty"
	FetchFailed  = "failed"
)

// Run is one batch execution.
type Run struct {
	ID          string
	Version     string
	Mode        string    // ModeRun when empty
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	WindowStart string
	WindowEnd   string
	SummaryType string

	TagsTotal      int
	TagsFetched    int
	TagsSkipped    int
	FeedersWritten int
	FeedersSkipped int

	Error string
}

// Fetch is the outcome of one historian request.
type Fetch struct {
	CircuitID string
	TagWebID  string
	TagName   string
	Status    string
	Points    int
	Error     string
	FetchedAt time.Time
}

// FeederOutput is one written feeder file.
type FeederOutput struct {
	CircuitID string
	Path      string
	Rows      int
	Columns   int
	WrittenAt time.Time
}

// Repository records runs in the SQLite ledger.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a ledger repository.
//
// Parameters:
//   - db: Open SQLite connection with the run ledger migration applied
//
// Returns:
//   - *Repository: Repository instance ready for use
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StartRun inserts a run in the running state.
func (r *Repository) StartRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrRunIDRequired
	}

	mode := run.Mode
	if mode == "" {
		mode = ModeRun
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, version, mode, started_at, status, window_start, window_end, summary_type, tags_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Version,
		mode,
		formatTime(run.StartedAt),
		StatusRunning,
		run.WindowStart,
		run.WindowEnd,
		run.SummaryType,
		run.TagsTotal,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// RecordFetch appends a fetch outcome to a run.
func (r *Repository) RecordFetch(ctx context.Context, runID string, f Fetch) error {
	if runID == "" {
		return ErrRunIDRequired
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tag_fetches (run_id, circuit_id, tag_web_id, tag_name, status, points, error, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		f.CircuitID,
		f.TagWebID,
		f.TagName,
		f.Status,
		f.Points,
		nullString(f.Error),
		formatTime(f.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting tag fetch: %w", err)
	}
	return nil
}

// RecordFeeder records a written feeder file. Writing the same circuit
// twice in one run keeps the latest.
func (r *Repository) RecordFeeder(ctx context.Context, runID string, out FeederOutput) error {
	if runID == "" {
		return ErrRunIDRequired
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeder_outputs (run_id, circuit_id, path, row_count, col_count, written_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, circuit_id) DO UPDATE SET
		     path = excluded.path,
		     row_count = excluded.row_count,
		     col_count = excluded.col_count,
		     written_at = excluded.written_at`,
		runID,
		out.CircuitID,
		out.Path,
		out.Rows,
		out.Columns,
		formatTime(out.WrittenAt),
	)
	if err != nil {
		return fmt.Errorf("inserting feeder output: %w", err)
	}
	return nil
}

// FinishRun stores the terminal status and counters of a run.
func (r *Repository) FinishRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrRunIDRequired
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs
		 SET finished_at = ?, status = ?, tags_total = ?, tags_fetched = ?,
		     tags_skipped = ?, feeders_written = ?, feeders_skipped = ?, error = ?
		 WHERE id = ?`,
		formatTime(run.FinishedAt),
		run.Status,
		run.TagsTotal,
		run.TagsFetched,
		run.TagsSkipped,
		run.FeedersWritten,
		run.FeedersSkipped,
		nullString(run.Error),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum runs to return (default 20, max 500)
func (r *Repository) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+`
		 FROM runs
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Get returns one run by id, or ErrRunNotFound.
func (r *Repository) Get(ctx context.Context, runID string) (Run, error) {
	if runID == "" {
		return Run{}, ErrRunIDRequired
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// runColumns is the column list scanRun expects.
const runColumns = `id, version, mode, started_at, finished_at, status, window_start, window_end,
		        summary_type, tags_total, tags_fetched, tags_skipped, feeders_written,
		        feeders_skipped, error`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
		runErr     sql.NullString
	)
	err := row.Scan(&run.ID, &run.Version, &run.Mode, &startedAt, &finishedAt, &run.Status,
		&run.WindowStart, &run.WindowEnd, &run.SummaryType,
		&run.TagsTotal, &run.TagsFetched, &run.TagsSkipped, &run.FeedersWritten,
		&run.FeedersSkipped, &runErr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt.String)
	run.Error = runErr.String
	return run, nil
}

// Fetches returns the fetch outcomes of one run in recording order.
func (r *Repository) Fetches(ctx context.Context, runID string) ([]Fetch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT circuit_id, tag_web_id, tag_name, status, points, error, fetched_at
		 FROM tag_fetches
		 WHERE run_id = ?
		 ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tag fetches: %w", err)
	}
	defer rows.Close()

	var fetches []Fetch
	for rows.Next() {
		var (
			f         Fetch
			fetchErr  sql.NullString
			fetchedAt string
		)
		if err := rows.Scan(&f.CircuitID, &f.TagWebID, &f.TagName, &f.Status, &f.Points, &fetchErr, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning tag fetch: %w", err)
		}
		f.Error = fetchErr.String
		f.FetchedAt = parseTime(fetchedAt)
		fetches = append(fetches, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag fetches: %w", err)
	}
	return fetches, nil
}

// Feeders returns the feeder files written by one run.
func (r *Repository) Feeders(ctx context.Context, runID string) ([]FeederOutput, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT circuit_id, path, row_count, col_count, written_at
		 FROM feeder_outputs
		 WHERE run_id = ?
		 ORDER BY written_at, circuit_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying feeder outputs: %w", err)
	}
	defer rows.Close()

	var outputs []FeederOutput
	for rows.Next() {
		var (
			out       FeederOutput
			writtenAt string
		)
		if err := rows.Scan(&out.CircuitID, &out.Path, &out.Rows, &out.Columns, &writtenAt); err != nil {
			return nil, fmt.Errorf("scanning feeder output: %w", err)
		}
		out.WrittenAt = parseTime(writtenAt)
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feeder outputs: %w", err)
	}
	return outputs, nil
}

// timeLayout is RFC 3339 with a fixed nine-digit fraction so stored
// timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

// parseTime returns the zero time for empty or malformed values.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
