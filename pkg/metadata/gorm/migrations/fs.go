// Package migrations embeds the versioned SQL migration files used by
// golang-migrate against the PostgreSQL backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
