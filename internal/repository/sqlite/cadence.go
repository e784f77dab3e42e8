package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

// GetCadence returns the user's follow-up steps ordered by step_order. An empty
// slice means the user has not customized the cadence.
func (r *SQLiteRepo) GetCadence(ctx context.Context, userID int64) ([]models.CadenceStep, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT step_order, delay_hours, subject, body FROM followup_steps WHERE user_id = ? ORDER BY step_order ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CadenceStep
	for rows.Next() {
		var (
			s     models.CadenceStep
			hours int64
		)
		if err := rows.Scan(&s.Order, &hours, &s.Subject, &s.Body); err != nil {
			return nil, err
		}
		s.Delay = time.Duration(hours) * time.Hour
		out = append(out, s)
	}

	return out, rows.Err()
}

// ReplaceCadence swaps the user's steps atomically. Steps must already be
// validated and numbered.
func (r *SQLiteRepo) ReplaceCadence(ctx context.Context, userID int64, steps []models.CadenceStep) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM followup_steps WHERE user_id = ?`, userID); err != nil {
			return err
		}
		ts := now()
		for _, s := range steps {
			if _, err := tx.ExecContext(ctx, `INSERT INTO followup_steps (user_id, step_order, delay_hours, subject, body, updated) VALUES (?, ?, ?, ?, ?, ?)`,
				userID, s.Order, s.DelayHours(), s.Subject, s.Body, ts); err != nil {
				return err
			}
		}
		return nil
	})
}
