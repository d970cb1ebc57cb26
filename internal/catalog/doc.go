// Package catalog loads the feeder tag catalog from the data warehouse.
//
// Each row maps a PI tag (web id and name) to the circuit it measures.
// The row order of the query decides both the order tags are fetched and
// the column order of each feeder file, so the query should sort by
// circuit id.
package catalog
