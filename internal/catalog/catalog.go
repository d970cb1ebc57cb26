package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
)

// Catalog column names. Drivers report them in whatever case the
// warehouse uses, so they are matched case-insensitively.
const (
	columnCircuitID = "circuit_id"
	columnWebID     = "pi_tag_web_id"
	columnTagName   = "pi_tag_name"
)

// TagMapping ties one historian tag to the circuit it measures.
type TagMapping struct {
	CircuitID string `csv:"CIRCUIT_ID"`
	TagWebID  string `csv:"PI_TAG_WEB_ID"`
	TagName   string `csv:"PI_TAG_NAME"`
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
}

// SQLSource reads tag mappings with a single parameterless query.
type SQLSource struct {
	db     *sql.DB
	query  string
	logger Logger
}

// NewSQLSource creates a source running query against db.
// The query must return circuit_id, pi_tag_web_id and pi_tag_name columns;
// other columns are ignored.
func NewSQLSource(db *sql.DB, query string) *SQLSource {
	return &SQLSource{db: db, query: query}
}

// SetLogger sets a logger for rows skipped during Load.
func (s *SQLSource) SetLogger(logger Logger) {
	s.logger = logger
}

// Load runs the catalog query and returns mappings in result order.
//
// Rows with an empty circuit id, web id or tag name cannot be fetched or
// written and are skipped with a warning. NULLs count as empty.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//
// Returns:
//   - []TagMapping: Mappings in query order
//   - error: ErrQueryFailed or ErrMissingColumn, wrapped
func (s *SQLSource) Load(ctx context.Context) ([]TagMapping, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: reading columns: %w", ErrQueryFailed, err)
	}
	idx, err := columnIndexes(columns)
	if err != nil {
		return nil, err
	}

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	var mappings []TagMapping
	row := 0
	for rows.Next() {
		row++
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scanning row %d: %w", ErrQueryFailed, row, err)
		}

		m := TagMapping{
			CircuitID: strings.TrimSpace(values[idx[0]].String),
			TagWebID:  strings.TrimSpace(values[idx[1]].String),
			TagName:   strings.TrimSpace(values[idx[2]].String),
		}
		if m.CircuitID == "" || m.TagWebID == "" || m.TagName == "" {
			if s.logger != nil {
				s.logger.Warn("skipping incomplete catalog row",
					"row", row,
					"circuit_id", m.CircuitID,
					"tag_name", m.TagName,
				)
			}
			continue
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %w", ErrQueryFailed, err)
	}

	return mappings, nil
}

// columnIndexes locates the three catalog columns in a result set.
func columnIndexes(columns []string) ([3]int, error) {
	idx := [3]int{-1, -1, -1}
	for i, name := range columns {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnCircuitID:
			idx[0] = i
		case columnWebID:
			idx[1] = i
		case columnTagName:
			idx[2] = i
		}
	}

	var missing []string
	for i, want := range []string{columnCircuitID, columnWebID, columnTagName} {
		if idx[i] < 0 {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

// Circuits returns the distinct circuit ids in first-appearance order.
func Circuits(mappings []TagMapping) []string {
	seen := make(map[string]bool)
	var circuits []string
	for _, m := range mappings {
		if !seen[m.CircuitID] {
			seen[m.CircuitID] = true
			circuits = append(circuits, m.CircuitID)
		}
	}
	return circuits
}

// WriteCSV writes mappings as CSV with the warehouse column names as header.
func WriteCSV(w io.Writer, mappings []TagMapping) error {
	if len(mappings) == 0 {
		_, err := io.WriteString(w, "CIRCUIT_ID,PI_TAG_WEB_ID,PI_TAG_NAME\n")
		return err
	}
	data, err := csvutil.Marshal(mappings)
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	_, err = w.Write(data)
	return err
}
