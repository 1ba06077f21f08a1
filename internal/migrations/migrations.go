// Package migrations applies the embedded Postgres schema at startup.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var files embed.FS

const table = "schema_migrations"

func source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: files, Root: "sql"}
}

// Up applies all pending migrations and returns how many ran.
func Up(db *sql.DB) (int, error) {
	migrate.SetTable(table)
	n, err := migrate.Exec(db, "postgres", source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("migrations: apply: %w", err)
	}
	return n, nil
}

// Pending lists migration ids not yet applied.
func Pending(db *sql.DB) ([]string, error) {
	migrate.SetTable(table)
	planned, _, err := migrate.PlanMigration(db, "postgres", source(), migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("migrations: plan: %w", err)
	}
	out := make([]string, 0, len(planned))
	for _, m := range planned {
		out = append(out, m.Id)
	}
	return out, nil
}
