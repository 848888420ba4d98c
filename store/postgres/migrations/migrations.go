// Package migrations embeds the goose SQL migrations for the postgres
// store.
package migrations

import "embed"

// FS holds the versioned migration files applied by Store.Migrate.
//
//go:embed *.sql
var FS embed.FS
