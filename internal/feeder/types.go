package feeder

// SamplePoint is one summarised historian value.
//
// Timestamp is kept exactly as the historian sent it. Value is never blank:
// null recorded values are stored as 0.
type SamplePoint struct {
	Timestamp string  `csv:"Timestamp"`
	Value     float64 `csv:"Recorded Value"`
}

// TagSeries is the ordered sample list fetched for one tag of one circuit.
type TagSeries struct {
	CircuitID string
	TagName   string
	Points    []SamplePoint

	// ArtifactPath is the staged raw file, or "" when the series was not staged.
	ArtifactPath string
}

// Table is the wide per-circuit output: one row per timestamp and one value
// column per tag, in the order the tags were added.
type Table struct {
	CircuitID  string
	Columns    []string
	Timestamps []string

	// Values is row-major: Values[i][j] belongs to Timestamps[i] and Columns[j].
	Values [][]float64
}

// Header returns the CSV header row: "Timestamp" followed by the tag columns.
func (t *Table) Header() []string {
	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, "Timestamp")
	return append(header, t.Columns...)
}

// Rows returns the number of data rows.
func (t *Table) Rows() int {
	return len(t.Timestamps)
}

// Batch groups fetched series by circuit for one run.
//
// Circuits are returned in the order their first series was added and
// series within a circuit keep their insertion order. Adding a series for a
// (circuit, tag) that already exists replaces it in place.
//
// Batch is not safe for concurrent use.
type Batch struct {
	order    []string
	circuits map[string][]TagSeries
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{circuits: make(map[string][]TagSeries)}
}

// Add records a series. It returns true when it replaced an earlier series
// for the same circuit and tag.
func (b *Batch) Add(s TagSeries) (replaced bool) {
	existing, ok := b.circuits[s.CircuitID]
	if !ok {
		b.order = append(b.order, s.CircuitID)
	}
	for i := range existing {
		if existing[i].TagName == s.TagName {
			existing[i] = s
			return true
		}
	}
	b.circuits[s.CircuitID] = append(existing, s)
	return false
}

// Circuits returns circuit ids in first-seen order.
func (b *Batch) Circuits() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Series returns the series recorded for a circuit.
func (b *Batch) Series(circuitID string) []TagSeries {
	return b.circuits[circuitID]
}

// ArtifactPaths returns the staged raw files for a circuit.
func (b *Batch) ArtifactPaths(circuitID string) []string {
	var paths []string
	for _, s := range b.circuits[circuitID] {
		if s.ArtifactPath != "" {
			paths = append(paths, s.ArtifactPath)
		}
	}
	return paths
}

// Len returns the number of series across all circuits.
func (b *Batch) Len() int {
	n := 0
	for _, series := range b.circuits {
		n += len(series)
	}
	return n
}
