// Package database provides the SQLite connection used for the bridge's
// mutable state (scenes, zone ids, dsUIDs, session cookie, state history).
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are forward-only *.up.sql files named
// YYYYMMDD_HHMMSS_description.up.sql, applied one transaction each.
package database
