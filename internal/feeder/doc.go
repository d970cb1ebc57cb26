// Package feeder turns per-tag historian series into one wide CSV per circuit.
//
// A batch run fetches many tags. Each fetched tag becomes a TagSeries,
// grouped in memory by circuit in a Batch. When every tag has been fetched
// the runner joins each circuit's series into a Table keyed on timestamp
// and writes it to {circuit_id}.csv.
//
// # Data Flow
//
//	historian ──▶ TagSeries ──▶ Batch (circuit → series, catalog order)
//	                  │                      │
//	                  ▼                      ▼
//	        Store.WriteRaw            Join(circuit, series, policy)
//	   (raw/{circuit}_{tag}.csv)             │
//	                  │                      ▼
//	                  │               Store.WriteTable ──▶ {circuit}.csv
//	                  │                      │
//	                  └───────── Store.Remove(raw paths) ◀┘
//
// Raw files are a staging and recovery artifact only. The batch, not the
// directory, is the source of truth during a run; ScanRaw rebuilds the
// grouping from the directory when a previous run was interrupted.
//
// # Alignment
//
// Join matches rows by timestamp string. Series that do not cover the same
// timestamps are handled by a FillPolicy:
//
//   - FillReject: return a *MisalignedError (default)
//   - FillZero: write 0 in missing cells
//   - FillForward: repeat the column's previous value, 0 before the first
package feeder
