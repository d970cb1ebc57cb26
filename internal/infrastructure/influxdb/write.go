package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by feederpull.
const (
	measurementSamples = "feeder_samples"
	measurementRuns    = "feeder_runs"
)

// WriteSample records one historian sample at its historian timestamp.
//
// Parameters:
//   - circuitID: Circuit the tag belongs to
//   - tagName: PI tag name
//   - ts: Sample timestamp from the historian
//   - value: Summarised value
//
// Example:
//
//	client.WriteSample("F100", "F100.KW", ts, 412.7)
func (c *Client) WriteSample(circuitID, tagName string, ts time.Time, value float64) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementSamples,
		map[string]string{
			"circuit_id": circuitID,
			"tag_name":   tagName,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	))
	c.queued.Add(1)
}

// RunStats are the counters of one finished run.
type RunStats struct {
	RunID          string
	Status         string
	TagsFetched    int
	TagsSkipped    int
	FeedersWritten int
	Duration       time.Duration
}

// WriteRun records the outcome of a run at its finish time.
func (c *Client) WriteRun(stats RunStats, finishedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		measurementRuns,
		map[string]string{
			"status": stats.Status,
		},
		map[string]interface{}{
			"run_id":           stats.RunID,
			"tags_fetched":     stats.TagsFetched,
			"tags_skipped":     stats.TagsSkipped,
			"feeders_written":  stats.FeedersWritten,
			"duration_seconds": stats.Duration.Seconds(),
		},
		finishedAt,
	))
	c.queued.Add(1)
}
