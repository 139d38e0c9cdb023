// Package snapshot persists the change detection baseline in SQLite so a
// restarted device does not re-report values the platform already has.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Snapshot.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//	device := iotdevice.New(uri, id, secret,
//	    iotdevice.WithSnapshotStore(snapshot.NewSQLiteStore(db.DB)))
package snapshot
