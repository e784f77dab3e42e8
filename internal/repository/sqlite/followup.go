package sqlite

import (
	"context"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

func (r *SQLiteRepo) ListFollowUpsDue(ctx context.Context, ts, staleBefore time.Time, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryLeads(ctx, `SELECT `+leadColumns+` FROM leads
		WHERE followup_status = 'active' AND followup_next_at IS NOT NULL AND followup_next_at <= ?
		AND (followup_claimed_at IS NULL OR followup_claimed_at < ?)
		ORDER BY followup_next_at ASC, id ASC LIMIT ?`,
		millis(ts), millis(staleBefore), limit)
}

// ClaimFollowUp takes the right to process follow-up step for the lead. The
// guard on followup_step makes a claim for an already advanced step fail.
func (r *SQLiteRepo) ClaimFollowUp(ctx context.Context, id int64, step int, ts, staleBefore time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET followup_claimed_at = ?, updated = ?
		WHERE id = ? AND followup_status = 'active' AND followup_step = ?
		AND followup_next_at IS NOT NULL AND followup_next_at <= ?
		AND (followup_claimed_at IS NULL OR followup_claimed_at < ?)`,
		millis(ts), millis(ts), id, step, millis(ts), millis(staleBefore))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// AdvanceFollowUp records a delivered touch for step and releases the claim.
// A nil nextAt means the cadence is exhausted and the lead stops.
func (r *SQLiteRepo) AdvanceFollowUp(ctx context.Context, id int64, step int, ts time.Time, nextAt *time.Time) (bool, error) {
	status := models.FollowUpActive
	if nextAt == nil {
		status = models.FollowUpStopped
	}
	res, err := r.conn.Exec(ctx, `UPDATE leads SET followup_step = followup_step + 1, followup_last_sent_at = ?,
		followup_next_at = ?, followup_status = ?, followup_claimed_at = NULL, followup_error = NULL, updated = ?
		WHERE id = ? AND followup_step = ? AND followup_status = 'active'`,
		millis(ts), nullMillis(nextAt), string(status), millis(ts), id, step)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// StopFollowUp ends the cadence. A non-empty failure is kept on the lead.
func (r *SQLiteRepo) StopFollowUp(ctx context.Context, id int64, ts time.Time, failure string) error {
	_, err := r.conn.Exec(ctx, `UPDATE leads SET followup_status = 'stopped', followup_next_at = NULL, followup_claimed_at = NULL,
		followup_error = NULLIF(?, ''), updated = ?
		WHERE id = ? AND followup_status = 'active'`,
		failure, millis(ts), id)
	return err
}

func (r *SQLiteRepo) HasReplySince(ctx context.Context, leadID int64, since time.Time) (bool, error) {
	var exists int
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM email_events WHERE lead_id = ? AND type = 'reply' AND created >= ?)`, leadID, millis(since)).Scan(&exists); err != nil {
		return false, err
	}
	return exists == 1, nil
}
