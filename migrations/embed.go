// Package migrations embeds the SQL schema files applied by store.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
