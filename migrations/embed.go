// Package migrations embeds the Postgres schema migrations applied at startup
// when DB_DRIVER=postgres. SQLite deployments use GORM AutoMigrate instead.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
