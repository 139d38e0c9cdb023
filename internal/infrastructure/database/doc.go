// Package database provides the SQLite file a device process keeps its
// local state in.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Health checks for the status server
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Snapshot.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive-only: new columns must be NULLABLE or have
// DEFAULT values, and every .up.sql has a matching .down.sql.
package database
