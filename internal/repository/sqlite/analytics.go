package sqlite

import (
	"context"

	"github.com/garnizeh/outreach/internal/models"
)

// EngagementCounts returns the raw per-user counters. Rates are left at zero;
// the analytics package derives them.
func (r *SQLiteRepo) EngagementCounts(ctx context.Context, userID int64) (*models.EngagementSummary, error) {
	row := r.conn.QueryRow(ctx, `SELECT
		COALESCE(SUM(CASE WHEN outreach_sent_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(email_opens), 0),
		COALESCE(SUM(email_clicks), 0),
		COALESCE(SUM(CASE WHEN engagement_score > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN engagement_level = 'none' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN engagement_level = 'interested' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN engagement_level = 'warm' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN engagement_level = 'hot' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outreach_sent_at IS NULL AND scheduled_send_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outreach_sent_at IS NULL AND send_failed_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN followup_status = 'active' THEN 1 ELSE 0 END), 0)
		FROM leads WHERE user_id = ?`, userID)

	var (
		s                          models.EngagementSummary
		none, interested, warm, hot int64
	)
	if err := row.Scan(&s.TotalSent, &s.TotalOpens, &s.TotalClicks, &s.Engaged,
		&none, &interested, &warm, &hot,
		&s.Scheduled, &s.SendFailed, &s.FollowUpActive); err != nil {
		return nil, err
	}

	s.Levels = map[models.EngagementLevel]int64{
		models.LevelNone:       none,
		models.LevelInterested: interested,
		models.LevelWarm:       warm,
		models.LevelHot:        hot,
	}
	return &s, nil
}
