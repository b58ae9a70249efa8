// Package database provides the SQLite store behind the bridge's state
// history.
//
// The connection runs in WAL mode with a busy timeout so the history
// writer and HTTP readers do not trip over "database is locked". The
// file and its directory are created on first open with owner-only
// permissions.
//
// Schema changes are plain SQL files passed to Migrate as an fs.FS,
// normally the embedded set from the top-level migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database
