package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS is set by the migrations package at init time so the
// gate's schema ships inside the binary:
//
//	//go:embed *.sql
//	var files embed.FS
//
//	func init() {
//	    database.MigrationsFS = files
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the .sql
// files. "." when they sit at the embedded root.
var MigrationsDir = "migrations"

// versionLen is the length of a migration version, YYYYMMDD_HHMMSS.
const versionLen = len("20060102_150405")

// Migration is one schema change, read from a
// <version>_<name>.up.sql file and its optional .down.sql pair.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS, orders application
	Name    string // trailing part of the filename
	UpSQL   string
	DownSQL string // empty when no down file exists
}

// MigrationRecord is a row of the schema_migrations bookkeeping table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate brings the schema up to date, applying pending migrations
// oldest first. Each migration runs in its own transaction: when
// migration N fails, 1..N-1 stay committed, N rolls back, and the run
// stops there, so a corrected Migrate resumes exactly at the failure.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	if len(all) == 0 {
		return nil
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range pendingOf(all, applied) {
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration. A
// development and test convenience; production schemas only move
// forward.
func (db *DB) MigrateDown(ctx context.Context) error {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1].Version

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	down, found := "", false
	for _, m := range all {
		if m.Version == latest {
			down, found = m.DownSQL, true
			break
		}
	}
	if !found {
		return fmt.Errorf("migration %s is applied but missing from the embedded filesystem", latest)
	}
	if down == "" {
		return fmt.Errorf("migration %s has no down SQL", latest)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, down); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_migrations WHERE version = ?", latest,
	); err != nil {
		return fmt.Errorf("removing version record: %w", err)
	}
	return tx.Commit()
}

// GetMigrationStatus reports applied and pending migrations. The
// metrics endpoint surfaces the pending count so operators can spot a
// half-migrated database.
func (db *DB) GetMigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	applied, err = db.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations()
	if err != nil {
		return nil, nil, err
	}
	return applied, pendingOf(all, applied), nil
}

// pendingOf filters all down to the migrations not yet applied.
func pendingOf(all []Migration, applied []MigrationRecord) []Migration {
	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}

	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending
}

// apply runs one migration and records its version, both inside a
// single transaction.
func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing up SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// appliedMigrations reads the bookkeeping table in version order.
func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var at string
		if err := rows.Scan(&r.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by apply in a fixed format
		records = append(records, r)
	}
	return records, rows.Err()
}

// loadMigrations reads every migration pair from the embedded
// filesystem, sorted by version. Up files define the set; a down file
// without a matching up is ignored.
func loadMigrations() ([]Migration, error) {
	var zero embed.FS
	if MigrationsFS == zero {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		// No embedded directory means no migrations to run.
		return nil, nil
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		version, name, up, ok := parseFilename(e.Name())
		if e.IsDir() || !ok || !up {
			continue
		}
		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		byVersion[version] = &Migration{Version: version, Name: name, UpSQL: string(sql)}
	}
	for _, e := range entries {
		version, _, up, ok := parseFilename(e.Name())
		if e.IsDir() || !ok || up {
			continue
		}
		m := byVersion[version]
		if m == nil {
			continue
		}
		sql, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		m.DownSQL = string(sql)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseFilename splits "20260210_090000_create_decisions.up.sql" into
// its version, short name, and direction. Files that do not match the
// <version>_<name>.{up,down}.sql shape are skipped, not errors: the
// directory may carry READMEs or editor droppings.
func parseFilename(filename string) (version, name string, up, ok bool) {
	base, isSQL := strings.CutSuffix(filename, ".sql")
	if !isSQL {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	if len(base) < versionLen+2 || base[versionLen] != '_' {
		return "", "", false, false
	}
	version, name = base[:versionLen], base[versionLen+1:]
	if !validVersion(version) {
		return "", "", false, false
	}
	return version, name, up, true
}

// validVersion reports whether s is exactly YYYYMMDD_HHMMSS.
func validVersion(s string) bool {
	for i, c := range s {
		if i == 8 {
			if c != '_' {
				return false
			}
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) == versionLen
}
