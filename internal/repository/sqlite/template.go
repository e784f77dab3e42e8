package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/garnizeh/outreach/internal/models"
)

// CreateTemplate upserts a prompt template keyed by name and version.
func (r *SQLiteRepo) CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string, metadata *string) (int64, error) {
	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO ai_templates (name, version, template_text, schema_version, metadata, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET template_text = excluded.template_text, schema_version = excluded.schema_version, metadata = excluded.metadata, updated = excluded.updated`,
		name, version, templateText, nullString(schemaVersion), nullString(metadata), ts, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepo) GetTemplate(ctx context.Context, name, version string) (*models.Template, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, name, version, template_text, schema_version, metadata, created, updated FROM ai_templates WHERE name = ? AND version = ?`, name, version)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *SQLiteRepo) ListTemplates(ctx context.Context) ([]models.Template, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, name, version, template_text, schema_version, metadata, created, updated FROM ai_templates ORDER BY name, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(s scanner) (*models.Template, error) {
	var (
		t         models.Template
		schemaVer sql.NullString
		metadata  sql.NullString
	)
	if err := s.Scan(&t.ID, &t.Name, &t.Version, &t.TemplateTxt, &schemaVer, &metadata, &t.Created, &t.Updated); err != nil {
		return nil, err
	}
	t.SchemaVer = stringPtr(schemaVer)
	t.Metadata = stringPtr(metadata)
	return &t, nil
}
