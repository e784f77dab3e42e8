package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/outreach/internal/models"
)

// ErrSchemaInUse is returned by DeleteSchema while a prompt template still
// names the version.
var ErrSchemaInUse = errors.New("schema is referenced by a prompt template")

const schemaColumns = `id, version, COALESCE(description, ''), schema_json, created, updated`

func scanSchema(s scanner) (models.Schema, error) {
	var out models.Schema
	err := s.Scan(&out.ID, &out.Version, &out.Description, &out.SchemaJSON, &out.Created, &out.Updated)
	return out, err
}

// CreateSchema stores a draft response schema. Saving an existing version
// replaces its body and keeps the original id.
func (r *SQLiteRepo) CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error) {
	ts := now()
	var id int64
	err := r.conn.QueryRow(ctx, `INSERT INTO ai_schemas (version, description, schema_json, created, updated) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET description = excluded.description, schema_json = excluded.schema_json, updated = excluded.updated
		RETURNING id`,
		version, description, schemaJSON, ts, ts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save schema %s: %w", version, err)
	}
	return id, nil
}

// GetSchemaByVersion returns nil when the version is unknown.
func (r *SQLiteRepo) GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error) {
	s, err := scanSchema(r.conn.QueryRow(ctx, `SELECT `+schemaColumns+` FROM ai_schemas WHERE version = ?`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+schemaColumns+` FROM ai_schemas ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schema
	for rows.Next() {
		s, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteSchema(ctx context.Context, version string) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM ai_schemas WHERE version = ?
		AND NOT EXISTS (SELECT 1 FROM ai_templates WHERE schema_version = ?)`, version, version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var used int
		if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM ai_templates WHERE schema_version = ?`, version).Scan(&used); err != nil {
			return err
		}
		if used > 0 {
			return ErrSchemaInUse
		}
	}
	return nil
}
