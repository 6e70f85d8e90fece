// Package migrations embeds the booking service schema for cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
