// Package migrations embeds the goose SQL migrations for the outcome database.
package migrations

import "embed"

// FS holds the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
