// Package migrations embeds the SQL migration files.
package migrations

import "embed"

// FS contains the schema migrations, *_up.sql and *_down.sql pairs applied
// in filename order.
//
//go:embed *.sql
var FS embed.FS
