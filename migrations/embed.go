// Package migrations embeds the PostgreSQL schema migrations applied by
// cmd/migrate and by the integration test containers.
package migrations

import "embed"

// FS contains the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
