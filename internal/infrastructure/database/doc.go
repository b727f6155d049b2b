// Package database owns the SQLite store behind the admission gate:
// the connection, its pragmas, and the embedded schema migrations.
//
// The settings are chosen for the gate's write pattern. Every register
// request runs a check-then-admit transaction, so the DSN carries
// _txlock=immediate (write lock at BEGIN, not first write) and the
// pool is pinned to one connection; WAL mode keeps validate reads
// flowing while a register commits. Foreign keys are enforced and all
// tables are STRICT.
//
// Operational properties:
//   - The database file is created on first boot with 0600 permissions
//   - Organisation keys never appear in the file, only SHA-256 digests
//   - Migrations are embedded in the binary and applied at startup,
//     each in its own transaction
//   - Schema changes are additive: new columns are nullable or carry
//     defaults, and nothing is dropped or renamed
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
