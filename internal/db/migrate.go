package db

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

// Migrate applies the SQL files under "migrations/" in migrationFS that are not
// yet recorded in `schema_migrations`, in lexical order, then installs the AI
// drafting seed (prompt template and response schema) from seedFS. Seeds are
// upserts, so running Migrate repeatedly is safe.
func Migrate(ctx context.Context, d *DB, migrationFS embed.FS, seedFS embed.FS) error {
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	migDir := "migrations"

	entries, err := fs.ReadDir(migrationFS, migDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		if _, err := d.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec migration %s: %w", fname, err)
		}

		if _, err := d.Exec(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, ?)`, version, time.Now().UTC().UnixMilli()); err != nil {
			return fmt.Errorf("record migration %s: %w", fname, err)
		}
		d.logger.Info("db: migration applied", "version", version)
	}

	ts := time.Now().UTC().UnixMilli()

	// seed files are optional; a missing file is skipped
	if b, err := fs.ReadFile(seedFS, path.Join("seed", "outreach_schema_v1.json")); err == nil {
		if _, err := d.Exec(ctx, `INSERT INTO ai_schemas (version, description, schema_json, created, updated) VALUES ('outreach.v1', 'outreach draft response', ?, ?, ?) ON CONFLICT(version) DO UPDATE SET schema_json=excluded.schema_json, updated=excluded.updated`, string(b), ts, ts); err != nil {
			return fmt.Errorf("seed schema exec: %w", err)
		}
	}

	if b, err := fs.ReadFile(seedFS, path.Join("seed", "template_outreach_v1.txt")); err == nil {
		if _, err := d.Exec(ctx, `INSERT INTO ai_templates (name, version, template_text, schema_version, metadata, created, updated) VALUES ('outreach', 'v1', ?, 'outreach.v1', ?, ?, ?) ON CONFLICT(name, version) DO UPDATE SET template_text=excluded.template_text, updated=excluded.updated`, string(b), `{"owner":"system","description":"default outreach draft template"}`, ts, ts); err != nil {
			return fmt.Errorf("seed template exec: %w", err)
		}
	}

	return nil
}
