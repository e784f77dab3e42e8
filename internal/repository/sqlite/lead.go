package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

const leadColumns = `id, user_id, name, email, phone, outreach, outreach_subject,
	scheduled_send_at, outreach_sent_at, send_claimed_at, send_failed_at, send_error, provider_message_id,
	email_opens, email_clicks, engagement_score, engagement_level, last_engaged_at, next_step, unreachable, scored_event_id,
	followup_step, followup_status, followup_next_at, followup_last_sent_at, followup_claimed_at, followup_error,
	created, updated`

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(s scanner) (*models.Lead, error) {
	var (
		l                                                            models.Lead
		phone, outreach, subject, sendErr, providerID, followUpError sql.NullString
		scheduled, sent, claimed, failed, lastEngaged                sql.NullInt64
		fuNext, fuLast, fuClaimed                                    sql.NullInt64
		level, fuStatus                                              string
		unreachable                                                  int
		created, updated                                             int64
	)
	if err := s.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Email, &phone, &outreach, &subject,
		&scheduled, &sent, &claimed, &failed, &sendErr, &providerID,
		&l.EmailOpens, &l.EmailClicks, &l.EngagementScore, &level, &lastEngaged, &l.NextStep, &unreachable, &l.ScoredEventID,
		&l.FollowUpStep, &fuStatus, &fuNext, &fuLast, &fuClaimed, &followUpError,
		&created, &updated,
	); err != nil {
		return nil, err
	}

	l.Phone = phone.String
	l.Outreach = stringPtr(outreach)
	l.OutreachSubject = stringPtr(subject)
	l.ScheduledSendAt = timePtr(scheduled)
	l.OutreachSentAt = timePtr(sent)
	l.SendClaimedAt = timePtr(claimed)
	l.SendFailedAt = timePtr(failed)
	l.SendError = sendErr.String
	l.ProviderMessageID = providerID.String
	l.EngagementLevel = models.EngagementLevel(level)
	l.LastEngagedAt = timePtr(lastEngaged)
	l.Unreachable = unreachable != 0
	l.FollowUpStatus = models.FollowUpStatus(fuStatus)
	l.FollowUpNextAt = timePtr(fuNext)
	l.FollowUpLastSentAt = timePtr(fuLast)
	l.FollowUpClaimedAt = timePtr(fuClaimed)
	l.FollowUpError = followUpError.String
	l.Created = fromMillis(created)
	l.Updated = fromMillis(updated)

	return &l, nil
}

func (r *SQLiteRepo) queryLeads(ctx context.Context, query string, args ...any) ([]models.Lead, error) {
	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) getLead(ctx context.Context, query string, args ...any) (*models.Lead, error) {
	l, err := scanLead(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *SQLiteRepo) CreateLead(ctx context.Context, l *models.Lead) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("lead is nil")
	}

	var phone any
	if l.Phone != "" {
		phone = l.Phone
	}
	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO leads (user_id, name, email, phone, created, updated) VALUES (?, ?, ?, ?, ?, ?)`, l.UserID, l.Name, l.Email, phone, ts, ts)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// GetLead returns the lead only when it belongs to userID.
func (r *SQLiteRepo) GetLead(ctx context.Context, userID, id int64) (*models.Lead, error) {
	return r.getLead(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ? AND user_id = ?`, id, userID)
}

func (r *SQLiteRepo) GetLeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	return r.getLead(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
}

func (r *SQLiteRepo) ListLeads(ctx context.Context, userID int64, limit, offset int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return r.queryLeads(ctx, `SELECT `+leadColumns+` FROM leads WHERE user_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
}

func (r *SQLiteRepo) CountLeads(ctx context.Context, userID int64) (int64, error) {
	var cnt int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE user_id = ?`, userID).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

// UpdateContact changes the lead's name and addresses. The outreach state is
// left alone, so a failed lead can be fixed and retried.
func (r *SQLiteRepo) UpdateContact(ctx context.Context, userID, id int64, name, email, phone string, ts time.Time) (bool, error) {
	var p any
	if phone != "" {
		p = phone
	}
	res, err := r.conn.Exec(ctx, `UPDATE leads SET name = ?, email = ?, phone = ?, updated = ? WHERE id = ? AND user_id = ?`, name, email, p, millis(ts), id, userID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteLead removes the lead and its events.
func (r *SQLiteRepo) DeleteLead(ctx context.Context, userID, id int64) (bool, error) {
	var deleted bool
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM email_events WHERE lead_id = ? AND user_id = ?`, id, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return err
		}
		deleted, err = affected(res)
		return err
	})
	return deleted, err
}

// SeedDemoLeads inserts leads for userID unless the user already owns any.
// The existence check and the inserts share one transaction.
func (r *SQLiteRepo) SeedDemoLeads(ctx context.Context, userID int64, leads []models.Lead) (int, error) {
	inserted := 0
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE user_id = ?)`, userID).Scan(&exists); err != nil {
			return err
		}
		if exists == 1 {
			return nil
		}

		ts := now()
		for _, l := range leads {
			var phone any
			if l.Phone != "" {
				phone = l.Phone
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO leads (user_id, name, email, phone, outreach, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				userID, l.Name, l.Email, phone, nullString(l.Outreach), ts, ts); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Draft and schedule writes. Every one of them is guarded by "not sent and not
// claimed", which is what serializes them against the dispatcher.

func (r *SQLiteRepo) UpdateDraft(ctx context.Context, userID, id int64, d models.Draft, ts time.Time) (bool, error) {
	var subject any
	if d.Subject != "" {
		subject = d.Subject
	}
	res, err := r.conn.Exec(ctx, `UPDATE leads SET outreach = ?, outreach_subject = ?, send_failed_at = NULL, send_error = NULL, updated = ?
		WHERE id = ? AND user_id = ? AND outreach_sent_at IS NULL AND send_claimed_at IS NULL`,
		d.Body, subject, millis(ts), id, userID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *SQLiteRepo) SetSchedule(ctx context.Context, userID, id int64, when, ts time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET scheduled_send_at = ?, send_failed_at = NULL, send_error = NULL, updated = ?
		WHERE id = ? AND user_id = ? AND outreach_sent_at IS NULL AND send_claimed_at IS NULL
		AND outreach IS NOT NULL AND outreach != ''`,
		millis(when), millis(ts), id, userID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *SQLiteRepo) ClearSchedule(ctx context.Context, userID, id int64, ts time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET scheduled_send_at = NULL, updated = ?
		WHERE id = ? AND user_id = ? AND outreach_sent_at IS NULL AND send_claimed_at IS NULL`,
		millis(ts), id, userID)
	if err != nil {
		return false, err
	}
	return affected(res)
}
