// Package influxdb mirrors fetched feeder samples into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every sample the
// historian returns can be written as a feeder_samples point tagged with
// circuit_id and tag_name at its historian timestamp, and each run adds a
// feeder_runs point with its counters.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSample("F100", "F100.KW", ts, 412.7)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Write failures arrive asynchronously through SetOnError; connection and
// health check errors are returned directly.
package influxdb
