// Package migrations embeds the device state schema into the binary.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files at its root, ready for
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
