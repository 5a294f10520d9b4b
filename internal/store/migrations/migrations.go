// Package migrations holds the MySQL schema applied by internal/migration.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
