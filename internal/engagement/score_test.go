package engagement

import (
	"testing"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

func ev(id int64, typ models.EventType, at time.Time) models.EmailEvent {
	return models.EmailEvent{ID: id, LeadID: 1, UserID: 1, Type: typ, Created: at}
}

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		score int
		want  models.EngagementLevel
	}{
		{0, models.LevelNone},
		{1, models.LevelInterested},
		{2, models.LevelInterested},
		{3, models.LevelWarm},
		{5, models.LevelWarm},
		{6, models.LevelHot},
		{40, models.LevelHot},
	}
	for _, c := range cases {
		if got := Level(c.score); got != c.want {
			t.Errorf("Level(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestScore(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		events      []models.EmailEvent
		score       int
		level       models.EngagementLevel
		unreachable bool
		last        *time.Time
	}{
		{name: "no events", level: models.LevelNone},
		{
			name:   "two opens and a click",
			events: []models.EmailEvent{ev(1, models.EventOpen, base), ev(2, models.EventOpen, base.Add(time.Hour)), ev(3, models.EventClick, base.Add(2*time.Hour))},
			score:  5,
			level:  models.LevelWarm,
			last:   ptr(base.Add(2 * time.Hour)),
		},
		{
			name:   "two clicks are hot",
			events: []models.EmailEvent{ev(1, models.EventClick, base), ev(2, models.EventClick, base)},
			score:  6,
			level:  models.LevelHot,
			last:   ptr(base),
		},
		{
			name:        "bounce caps score",
			events:      []models.EmailEvent{ev(1, models.EventClick, base), ev(2, models.EventClick, base), ev(3, models.EventBounce, base.Add(time.Hour))},
			score:       0,
			level:       models.LevelNone,
			unreachable: true,
			last:        ptr(base),
		},
		{
			name:   "reply does not score",
			events: []models.EmailEvent{ev(1, models.EventReply, base)},
			level:  models.LevelNone,
		},
		{
			name:   "last engaged ignores insertion order",
			events: []models.EmailEvent{ev(1, models.EventOpen, base.Add(3*time.Hour)), ev(2, models.EventOpen, base)},
			score:  2,
			level:  models.LevelInterested,
			last:   ptr(base.Add(3 * time.Hour)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.events)
			if got.Score != tt.score || got.Level != tt.level || got.Unreachable != tt.unreachable {
				t.Fatalf("Score = %+v, want score=%d level=%s unreachable=%v", got, tt.score, tt.level, tt.unreachable)
			}
			switch {
			case tt.last == nil && got.LastEngagedAt != nil:
				t.Fatalf("expected no last engaged, got %v", got.LastEngagedAt)
			case tt.last != nil && (got.LastEngagedAt == nil || !got.LastEngagedAt.Equal(*tt.last)):
				t.Fatalf("last engaged = %v, want %v", got.LastEngagedAt, tt.last)
			}
			if got.NextStep == "" {
				t.Fatalf("expected a next step")
			}
		})
	}
}

func TestScore_Idempotent(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []models.EmailEvent{ev(1, models.EventOpen, base), ev(2, models.EventClick, base), ev(3, models.EventOpen, base)}

	a := Score(events)
	b := Score(events)
	if a.Score != b.Score || a.Level != b.Level || a.Opens != b.Opens || a.Clicks != b.Clicks {
		t.Fatalf("scores differ: %+v vs %+v", a, b)
	}
}

func ptr(t time.Time) *time.Time { return &t }
