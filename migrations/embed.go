// Package migrations compiles the SQL migration files into the
// binary, so a deployed gate can migrate its own database with
// nothing on disk beside the executable.
package migrations

import (
	"embed"

	"github.com/machineid-io/machineid-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // embedded files sit at the FS root
}
