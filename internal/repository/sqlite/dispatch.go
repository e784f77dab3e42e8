package sqlite

import (
	"context"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

const dueFilter = `outreach_sent_at IS NULL AND send_claimed_at IS NULL AND send_failed_at IS NULL
	AND scheduled_send_at IS NOT NULL AND scheduled_send_at <= ?`

func (r *SQLiteRepo) ListDue(ctx context.Context, ts time.Time, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryLeads(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+dueFilter+` ORDER BY scheduled_send_at ASC, id ASC LIMIT ?`, millis(ts), limit)
}

func (r *SQLiteRepo) ListDueForUser(ctx context.Context, userID int64, ts time.Time) ([]models.Lead, error) {
	return r.queryLeads(ctx, `SELECT `+leadColumns+` FROM leads WHERE user_id = ? AND `+dueFilter+` ORDER BY scheduled_send_at ASC, id ASC`, userID, millis(ts))
}

// ClaimSend marks the lead as being sent by the caller. Only one concurrent
// caller can win: the guard requires the lead to be unsent and unclaimed.
// A scheduled claim (direct == false) also requires the lead to still be due
// and not failed, so a cancel that lands between listing and claiming wins.
// A direct claim ("send now") may retry a failed lead.
func (r *SQLiteRepo) ClaimSend(ctx context.Context, id int64, ts time.Time, direct bool) (bool, error) {
	q := `UPDATE leads SET send_claimed_at = ?, send_failed_at = NULL, send_error = NULL, updated = ?
		WHERE id = ? AND outreach_sent_at IS NULL AND send_claimed_at IS NULL
		AND outreach IS NOT NULL AND outreach != ''`
	args := []any{millis(ts), millis(ts), id}
	if !direct {
		q += ` AND send_failed_at IS NULL AND scheduled_send_at IS NOT NULL AND scheduled_send_at <= ?`
		args = append(args, millis(ts))
	}

	res, err := r.conn.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkSent records a confirmed delivery and starts the follow-up cadence. It
// applies to a lead still holding a claim, or to one whose claim was swept as
// stale while the provider was still working.
func (r *SQLiteRepo) MarkSent(ctx context.Context, id int64, ts time.Time, providerMessageID string, followUpNextAt time.Time) (bool, error) {
	var pid any
	if providerMessageID != "" {
		pid = providerMessageID
	}
	res, err := r.conn.Exec(ctx, `UPDATE leads SET
		outreach_sent_at = ?, scheduled_send_at = NULL, send_claimed_at = NULL,
		send_failed_at = NULL, send_error = NULL, provider_message_id = ?,
		followup_status = 'active', followup_step = 1, followup_next_at = ?,
		followup_last_sent_at = NULL, followup_claimed_at = NULL, followup_error = NULL,
		updated = ?
		WHERE id = ? AND outreach_sent_at IS NULL
		AND (send_claimed_at IS NOT NULL OR (send_failed_at IS NOT NULL AND send_error = ?))`,
		millis(ts), pid, millis(followUpNextAt), millis(ts), id, models.StaleClaimReason)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkSendFailed moves an unsent lead to the failed state and releases the
// claim. The schedule is cleared so the lead is not picked up again.
func (r *SQLiteRepo) MarkSendFailed(ctx context.Context, id int64, ts time.Time, reason string) error {
	_, err := r.conn.Exec(ctx, `UPDATE leads SET send_failed_at = ?, send_error = ?, send_claimed_at = NULL, scheduled_send_at = NULL, updated = ?
		WHERE id = ? AND outreach_sent_at IS NULL`,
		millis(ts), reason, millis(ts), id)
	return err
}

// FailStaleClaims fails every claim taken before claimedBefore. The outcome of
// those deliveries is unknown, so they are surfaced rather than re-sent.
func (r *SQLiteRepo) FailStaleClaims(ctx context.Context, claimedBefore, ts time.Time, reason string) (int64, error) {
	res, err := r.conn.Exec(ctx, `UPDATE leads SET send_failed_at = ?, send_error = ?, send_claimed_at = NULL, scheduled_send_at = NULL, updated = ?
		WHERE outreach_sent_at IS NULL AND send_claimed_at IS NOT NULL AND send_claimed_at < ?`,
		millis(ts), reason, millis(ts), millis(claimedBefore))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
