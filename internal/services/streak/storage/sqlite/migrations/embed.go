package migrations

import "embed"

// FS contains embedded SQLite migrations for streak storage.
//
//go:embed *.sql
var FS embed.FS
