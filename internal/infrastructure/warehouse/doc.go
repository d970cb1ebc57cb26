// Package warehouse opens the database that holds the feeder tag catalog.
//
// Production catalogs live in a MySQL-compatible warehouse reached with
// go-sql-driver/mysql. For local runs and tests a SQLite file with the same
// table can be used instead; it is opened read-only.
//
// Usage:
//
//	db, err := warehouse.Open(ctx, cfg.Warehouse)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
package warehouse
