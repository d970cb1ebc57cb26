// Package metrics collects Prometheus metrics for one feederpull run and
// pushes them to a Pushgateway when the run ends.
//
// A batch job is gone before any scraper could reach it, so the metrics
// live in a private registry and are pushed once, grouped by job name.
// Nothing is registered on the global default registry.
package metrics
