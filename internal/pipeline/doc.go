// Package pipeline drives one feederpull batch run.
//
// A run loads the tag catalog, fetches the summary series of every tag in
// catalog order, stages each non-empty series as a raw artifact, and then
// builds one feeder table per circuit. A circuit's raw artifacts are
// removed once its aggregation has been attempted, whether or not it
// succeeded.
//
//	catalog ──▶ fetch (per tag) ──▶ raw artifact + batch ──▶ join (per circuit) ──▶ {circuit}.csv
//
// Failure handling:
//   - A tag whose fetch fails (HTTP status, transport, malformed body) is
//     logged, recorded and skipped.
//   - A catalog failure, a raw write failure, an aggregation failure or
//     cancellation ends the run with an error. Feeder files already
//     written stay on disk.
//
// Recover rebuilds feeder files from raw artifacts an interrupted run left
// behind, without contacting the historian.
//
// The ledger, notifier, mirror and metrics sinks are optional. Their
// errors are logged at warn level and never change the run outcome.
package pipeline
