// Package database provides a GORM-based sqlite database with connection
// retry, pooling, a logger bridge and a lifecycle component.
//
// The component respects the Enabled flag. When disabled Start returns
// immediately and Health reports healthy with a "disabled" message; the
// store then falls back to its in-memory implementation.
//
//	db := database.NewComponent(cfg.Database, log).
//	    WithAutoMigrate(&store.ModelRow{}, &store.TranscriptRow{})
//	registry.Register(db)
package database
