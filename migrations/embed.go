// Package migrations holds the PostgreSQL schema of the Test Catalog and
// the Result Store.
package migrations

import "embed"

// FS contains every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
