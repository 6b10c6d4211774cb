// Package migrations embeds the SQLite schema files into the binary.
package migrations

import "embed"

// FS holds the *.up.sql files; pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
