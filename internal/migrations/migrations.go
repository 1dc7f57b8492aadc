// Package migrations embeds the SQL schema for the contact store.
package migrations

import "embed"

// Files holds the numbered migration files (001_init.sql, ...). The
// store's migration runner applies any not yet recorded in
// schema_migrations, in lexical order.
//
//go:embed *.sql
var Files embed.FS
