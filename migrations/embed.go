// Package migrations embeds the run ledger schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/feederpull/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
