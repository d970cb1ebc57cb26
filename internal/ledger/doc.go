// Package ledger keeps a SQLite record of feederpull runs.
//
// Each run writes one row to runs when it starts and updates it when it
// finishes. Every historian request adds a tag_fetches row and every feeder
// file adds a feeder_outputs row, so an operator can see which tags were
// skipped and why without reading status logs.
//
// The schema is created by the run ledger migration in the migrations
// package; call database.DB.Migrate before using a Repository.
//
// Usage:
//
//	repo := ledger.NewRepository(db.DB)
//	runs, err := repo.Recent(ctx, 10)
package ledger
