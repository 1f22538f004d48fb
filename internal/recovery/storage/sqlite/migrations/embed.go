// Package migrations embeds the SQL schema for the recovery record store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
