package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
}

// MigrateUp applies every embedded migration newer than the version recorded
// in schema_meta. Each migration runs in its own transaction together with
// the version bump.
func MigrateUp(db *sql.DB) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}
	steps, err := listMigrations(".up.sql")
	if err != nil {
		return err
	}
	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m, m.version); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown reverts the applied migrations, newest first.
func MigrateDown(db *sql.DB) error {
	current, err := currentVersion(db)
	if err != nil {
		return err
	}
	steps, err := listMigrations(".down.sql")
	if err != nil {
		return err
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version > steps[j].version })
	for _, m := range steps {
		if m.version > current {
			continue
		}
		if err := applyMigration(db, m, m.version-1); err != nil {
			return err
		}
	}
	return nil
}

func listMigrations(suffix string) ([]migration, error) {
	entries, err := fs.Glob(migrationFiles, "migrations/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	out := make([]migration, 0, len(entries))
	for _, name := range entries {
		v, err := migrationVersion(name)
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: v, name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrationVersion reads the numeric prefix of a file like 0001_init.up.sql.
func migrationVersion(name string) (int, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s: missing version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migration %s: invalid version prefix %q", name, prefix)
	}
	return v, nil
}

func applyMigration(db *sql.DB, m migration, resultVersion int) error {
	sqlBytes, err := migrationFiles.ReadFile(m.name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.name, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.name, err)
	}
	if resultVersion > 0 {
		if _, err := tx.Exec(`
			INSERT INTO schema_meta (key, value) VALUES ('version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(resultVersion),
		); err != nil {
			return fmt.Errorf("record schema version %d: %w", resultVersion, err)
		}
	}
	return tx.Commit()
}

// currentVersion is 0 for a database that has never been migrated.
func currentVersion(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_meta'`).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var raw string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}
