// Package migrations embeds the goose SQL migration files shared by every
// service's database.RunMigrations call.
package migrations

import "embed"

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
