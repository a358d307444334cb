// Package migrations embeds the SQL schema files applied by golang-migrate at startup.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
