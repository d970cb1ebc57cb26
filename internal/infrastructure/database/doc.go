// Package database provides SQLite connectivity for the feederpull run ledger.
//
// This package manages:
//   - Database connection with WAL mode for concurrent readers
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Transaction helper with commit/rollback handling
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration Strategy:
//
// Migrations are additive. Each version ships a .up.sql and a .down.sql
// file; the down file must undo exactly what the up file created.
package database
