package feeder

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FillPolicy decides how Join treats a timestamp that some series lack.
type FillPolicy string

// Fill policies.
const (
	FillReject  FillPolicy = "reject"
	FillZero    FillPolicy = "zero"
	FillForward FillPolicy = "forward"
)

// ParseFillPolicy converts a configuration value to a FillPolicy.
// An empty string selects FillReject.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch p := FillPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FillReject, nil
	case FillReject, FillZero, FillForward:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFillPolicy, s)
	}
}

// Join builds the wide table for one circuit.
//
// Rows are keyed on the timestamp string. The first series sets the base
// row order and timestamps seen only in later series are appended in the
// order they appear. If every timestamp parses as RFC 3339 the rows are
// then sorted chronologically.
//
// Parameters:
//   - circuitID: Circuit the series belong to
//   - series: One series per tag, in column order
//   - policy: How to fill cells a series has no sample for
//
// Returns:
//   - *Table: The joined table
//   - error: ErrNoSeries, ErrDuplicateTag, ErrDuplicateTimestamp, or
//     *MisalignedError under FillReject
func Join(circuitID string, series []TagSeries, policy FillPolicy) (*Table, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: circuit %s", ErrNoSeries, circuitID)
	}

	columns := make([]string, len(series))
	lookup := make([]map[string]float64, len(series))
	seenTags := make(map[string]bool, len(series))

	var timestamps []string
	rowOf := make(map[string]bool)

	for i, s := range series {
		if seenTags[s.TagName] {
			return nil, fmt.Errorf("%w: circuit %s tag %s", ErrDuplicateTag, circuitID, s.TagName)
		}
		seenTags[s.TagName] = true
		columns[i] = s.TagName

		values := make(map[string]float64, len(s.Points))
		for _, p := range s.Points {
			if _, dup := values[p.Timestamp]; dup {
				return nil, fmt.Errorf("%w: circuit %s tag %s at %s",
					ErrDuplicateTimestamp, circuitID, s.TagName, p.Timestamp)
			}
			values[p.Timestamp] = p.Value

			if !rowOf[p.Timestamp] {
				rowOf[p.Timestamp] = true
				timestamps = append(timestamps, p.Timestamp)
			}
		}
		lookup[i] = values
	}

	sortChronologically(timestamps)

	table := &Table{
		CircuitID:  circuitID,
		Columns:    columns,
		Timestamps: timestamps,
		Values:     make([][]float64, len(timestamps)),
	}
	for r := range table.Values {
		table.Values[r] = make([]float64, len(columns))
	}

	for c, values := range lookup {
		if err := fillColumn(table, c, values, policy); err != nil {
			return nil, err
		}
	}

	return table, nil
}

// fillColumn writes column c of table from values according to policy.
func fillColumn(table *Table, c int, values map[string]float64, policy FillPolicy) error {
	var (
		missing int
		first   string
		prev    float64
	)

	for r, ts := range table.Timestamps {
		v, ok := values[ts]
		if !ok {
			if missing == 0 {
				first = ts
			}
			missing++

			switch policy {
			case FillForward:
				v = prev
			case FillZero:
				v = 0
			}
		}
		table.Values[r][c] = v
		prev = v
	}

	if missing > 0 && policy != FillZero && policy != FillForward {
		return &MisalignedError{
			CircuitID: table.CircuitID,
			TagName:   table.Columns[c],
			Missing:   missing,
			First:     first,
		}
	}
	return nil
}

// sortChronologically sorts timestamps in place when all of them parse as
// RFC 3339. Otherwise the order is left untouched.
func sortChronologically(timestamps []string) {
	parsed := make([]time.Time, len(timestamps))
	for i, ts := range timestamps {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return
		}
		parsed[i] = t
	}

	idx := make([]int, len(timestamps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return parsed[idx[a]].Before(parsed[idx[b]])
	})

	sorted := make([]string, len(timestamps))
	for i, j := range idx {
		sorted[i] = timestamps[j]
	}
	copy(timestamps, sorted)
}
