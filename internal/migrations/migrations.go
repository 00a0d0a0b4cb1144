// Package migrations holds the SQL schema applied at node startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
