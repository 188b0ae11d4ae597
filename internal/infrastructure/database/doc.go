// Package database provides SQLite connectivity for the Starlink bridge.
//
// The bridge persists a small amount of user-configurable state (the
// dish's custom name) so that it survives restarts. This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations embedded in the binary
//   - Health checks and lifecycle management
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Every migration file has both an .up.sql and a .down.sql half.
package database
