package migrations

import "embed"

// FS contains embedded SQLite migrations for template storage.
//
//go:embed *.sql
var FS embed.FS
