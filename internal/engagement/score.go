// Package engagement scores leads from their tracking events.
package engagement

import (
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

// Scoring weights and level thresholds.
const (
	OpenWeight  = 1
	ClickWeight = 3

	InterestedMin = 1
	WarmMin       = 3
	HotMin        = 6
)

// Level buckets a score.
func Level(score int) models.EngagementLevel {
	switch {
	case score >= HotMin:
		return models.LevelHot
	case score >= WarmMin:
		return models.LevelWarm
	case score >= InterestedMin:
		return models.LevelInterested
	default:
		return models.LevelNone
	}
}

// NextStep recommends what the owner should do at a level.
func NextStep(level models.EngagementLevel, unreachable bool) string {
	if unreachable {
		return "Address bounced: verify the email or phone before reaching out again"
	}
	switch level {
	case models.LevelHot:
		return "Call now: the lead is actively engaging"
	case models.LevelWarm:
		return "Send a personal follow-up with a meeting link"
	case models.LevelInterested:
		return "Keep nurturing: share a relevant case study"
	default:
		return "Wait for engagement or adjust the message"
	}
}

// Score computes engagement from a lead's full event history. It is a pure
// function of events: the same history always yields the same result.
func Score(events []models.EmailEvent) models.Engagement {
	var (
		e       models.Engagement
		bounced bool
		last    time.Time
	)
	for _, ev := range events {
		switch ev.Type {
		case models.EventOpen:
			e.Opens++
		case models.EventClick:
			e.Clicks++
		case models.EventBounce:
			bounced = true
			continue
		default:
			continue
		}
		if ev.Created.After(last) {
			last = ev.Created
		}
	}

	if !last.IsZero() {
		t := last.UTC()
		e.LastEngagedAt = &t
	}

	if bounced {
		e.Score = 0
		e.Unreachable = true
	} else {
		e.Score = e.Opens*OpenWeight + e.Clicks*ClickWeight
	}
	e.Level = Level(e.Score)
	e.NextStep = NextStep(e.Level, e.Unreachable)
	return e
}
