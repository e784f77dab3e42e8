package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

// AppendEvent stores a tracking event. Events are never updated.
func (r *SQLiteRepo) AppendEvent(ctx context.Context, e *models.EmailEvent) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("event is nil")
	}

	created := e.Created
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.conn.Exec(ctx, `INSERT INTO email_events (lead_id, user_id, type, created) VALUES (?, ?, ?, ?)`, e.LeadID, e.UserID, string(e.Type), millis(created))
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// ListEvents returns the full event log of a lead in insertion order.
func (r *SQLiteRepo) ListEvents(ctx context.Context, leadID int64) ([]models.EmailEvent, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, lead_id, user_id, type, created FROM email_events WHERE lead_id = ? ORDER BY id ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmailEvent
	for rows.Next() {
		var (
			e       models.EmailEvent
			typ     string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.UserID, &typ, &created); err != nil {
			return nil, err
		}
		e.Type = models.EventType(typ)
		e.Created = fromMillis(created)
		out = append(out, e)
	}

	return out, rows.Err()
}

// ApplyEngagement stores a score computed from the events up to upToEventID.
// The write is skipped when the lead already reflects a later event, so two
// racing recomputations settle on the newer one.
func (r *SQLiteRepo) ApplyEngagement(ctx context.Context, leadID int64, e models.Engagement, upToEventID int64, ts time.Time) (bool, error) {
	unreachable := 0
	if e.Unreachable {
		unreachable = 1
	}
	res, err := r.conn.Exec(ctx, `UPDATE leads SET email_opens = ?, email_clicks = ?, engagement_score = ?, engagement_level = ?,
		last_engaged_at = ?, next_step = ?, unreachable = ?, scored_event_id = ?, updated = ?
		WHERE id = ? AND scored_event_id <= ?`,
		e.Opens, e.Clicks, e.Score, string(e.Level), nullMillis(e.LastEngagedAt), e.NextStep, unreachable, upToEventID, millis(ts),
		leadID, upToEventID)
	if err != nil {
		return false, err
	}
	return affected(res)
}
