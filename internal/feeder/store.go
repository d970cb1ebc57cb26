package feeder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o640
	csvExt          = ".csv"
)

// Store reads and writes feeder artifacts on the local filesystem.
//
// Raw per-tag files live in RawDir as {circuit_id}_{tag_name}.csv with the
// header "Timestamp,Recorded Value". Feeder tables live in OutputDir as
// {circuit_id}.csv.
type Store struct {
	RawDir    string
	OutputDir string
}

// NewStore creates a store over the given directories. Directories are
// created on first write.
func NewStore(rawDir, outputDir string) *Store {
	return &Store{RawDir: rawDir, OutputDir: outputDir}
}

// RawPath returns the staging path for a circuit's tag.
func (s *Store) RawPath(circuitID, tagName string) string {
	return filepath.Join(s.RawDir, fileSafe(circuitID)+"_"+fileSafe(tagName)+csvExt)
}

// TablePath returns the output path for a circuit.
func (s *Store) TablePath(circuitID string) string {
	return filepath.Join(s.OutputDir, fileSafe(circuitID)+csvExt)
}

// TableCollisions reports circuits whose feeder files would share a path,
// such as "F/1" and "F:1" which both become F-1.csv.
func (s *Store) TableCollisions(circuitIDs []string) error {
	return collisions(circuitIDs, s.TablePath, "circuits")
}

// RawCollisions reports tags of one circuit whose raw artifacts would share
// a path.
func (s *Store) RawCollisions(circuitID string, tagNames []string) error {
	return collisions(tagNames, func(tag string) string {
		return s.RawPath(circuitID, tag)
	}, "tags of circuit "+circuitID)
}

// collisions groups names by path and returns one ErrPathCollision per path
// claimed by more than one name.
func collisions(names []string, pathOf func(string) string, kind string) error {
	claimed := make(map[string][]string, len(names))
	var paths []string
	for _, name := range names {
		path := pathOf(name)
		if _, ok := claimed[path]; !ok {
			paths = append(paths, path)
		}
		if !slices.Contains(claimed[path], name) {
			claimed[path] = append(claimed[path], name)
		}
	}

	var errs []error
	for _, path := range paths {
		if owners := claimed[path]; len(owners) > 1 {
			errs = append(errs, fmt.Errorf("%w: %s %q all map to %s", ErrPathCollision, kind, owners, path))
		}
	}
	return errors.Join(errs...)
}

// WriteRaw stages one tag series and returns the file it wrote. An existing
// file for the same circuit and tag is overwritten.
func (s *Store) WriteRaw(series TagSeries) (string, error) {
	if series.CircuitID == "" || series.TagName == "" {
		return "", fmt.Errorf("%w: circuit %q tag %q", ErrInvalidName, series.CircuitID, series.TagName)
	}
	if err := os.MkdirAll(s.RawDir, dirPermissions); err != nil {
		return "", fmt.Errorf("creating raw directory: %w", err)
	}

	path := s.RawPath(series.CircuitID, series.TagName)
	err := writeAtomic(path, func(w *csv.Writer) error {
		enc := csvutil.NewEncoder(w)
		if err := enc.EncodeHeader(SamplePoint{}); err != nil {
			return err
		}
		if len(series.Points) == 0 {
			return nil
		}
		return enc.Encode(series.Points)
	})
	if err != nil {
		return "", fmt.Errorf("writing raw artifact %s: %w", path, err)
	}
	return path, nil
}

// ReadRaw loads a staged tag file.
func (s *Store) ReadRaw(path string) ([]SamplePoint, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the raw directory listing
	if err != nil {
		return nil, fmt.Errorf("opening raw artifact: %w", err)
	}
	defer f.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading raw artifact header %s: %w", path, err)
	}

	var points []SamplePoint
	if err := dec.Decode(&points); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding raw artifact %s: %w", path, err)
	}
	return points, nil
}

// WriteTable writes a feeder table to OutputDir and returns its path.
// The table is written to a temporary file and renamed into place, so a
// reader never sees a partial file.
func (s *Store) WriteTable(t *Table) (string, error) {
	if t.CircuitID == "" {
		return "", fmt.Errorf("%w: empty circuit id", ErrInvalidName)
	}
	if err := os.MkdirAll(s.OutputDir, dirPermissions); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := s.TablePath(t.CircuitID)
	err := writeAtomic(path, func(w *csv.Writer) error {
		if err := w.Write(t.Header()); err != nil {
			return err
		}
		record := make([]string, len(t.Columns)+1)
		for r, ts := range t.Timestamps {
			record[0] = ts
			for c, v := range t.Values[r] {
				record[c+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("writing feeder table %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the given artifacts. Files that no longer exist are
// ignored; every other failure is collected and returned together.
func (s *Store) Remove(paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScanRaw rebuilds a batch from files left in RawDir.
//
// Each file is assigned to the circuit with the longest matching
// "{circuit_id}_" prefix, so circuit "F1" does not claim "F10_x.csv" when
// "F10" is also known. The tag name is the rest of the file name. Files that
// match no circuit are returned as orphans. A missing RawDir yields an
// empty batch.
func (s *Store) ScanRaw(circuits []string) (*Batch, []string, error) {
	batch := NewBatch()

	entries, err := os.ReadDir(s.RawDir)
	if errors.Is(err, fs.ErrNotExist) {
		return batch, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("listing raw directory: %w", err)
	}

	prefixes := make([]string, len(circuits))
	for i, c := range circuits {
		prefixes[i] = fileSafe(c) + "_"
	}

	byCircuit := make(map[string][]TagSeries)
	var orphans []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, csvExt) {
			continue
		}
		path := filepath.Join(s.RawDir, name)
		stem := strings.TrimSuffix(name, csvExt)

		best := -1
		for i, prefix := range prefixes {
			if strings.HasPrefix(stem, prefix) && len(stem) > len(prefix) &&
				(best < 0 || len(prefix) > len(prefixes[best])) {
				best = i
			}
		}
		if best < 0 {
			orphans = append(orphans, path)
			continue
		}

		points, err := s.ReadRaw(path)
		if err != nil {
			return nil, nil, err
		}
		byCircuit[circuits[best]] = append(byCircuit[circuits[best]], TagSeries{
			CircuitID:    circuits[best],
			TagName:      strings.TrimPrefix(stem, prefixes[best]),
			Points:       points,
			ArtifactPath: path,
		})
	}

	for _, c := range circuits {
		for _, series := range byCircuit[c] {
			batch.Add(series)
		}
	}
	return batch, orphans, nil
}

// writeAtomic writes a CSV file through a temporary sibling and renames it
// over path once the writer has flushed cleanly.
func writeAtomic(path string, fill func(*csv.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck // already failing
			os.Remove(tmp.Name()) //nolint:errcheck // already failing
		}
	}()

	w := csv.NewWriter(tmp)
	if err = fill(w); err != nil {
		return err
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return err
	}
	if err = tmp.Chmod(filePermissions); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fileSafe replaces path separators and characters reserved on common
// filesystems with '-'. It only affects file names, never CSV content.
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		if r < 0x20 {
			return '-'
		}
		return r
	}, name)
}
