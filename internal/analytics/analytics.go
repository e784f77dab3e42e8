// Package analytics rolls lead engagement up into per-user summaries.
package analytics

import (
	"context"
	"fmt"

	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/repository"
)

type Aggregator struct {
	repo repository.AnalyticsRepo
}

func NewAggregator(repo repository.AnalyticsRepo) *Aggregator {
	return &Aggregator{repo: repo}
}

// Summary returns the user's engagement rollup. Rates are zero when nothing
// was sent yet.
func (a *Aggregator) Summary(ctx context.Context, userID int64) (*models.EngagementSummary, error) {
	s, err := a.repo.EngagementCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engagement counts: %w", err)
	}

	if s.Levels == nil {
		s.Levels = map[models.EngagementLevel]int64{}
	}
	for _, lvl := range models.Levels {
		if _, ok := s.Levels[lvl]; !ok {
			s.Levels[lvl] = 0
		}
	}

	s.OpenRate = rate(s.TotalOpens, s.TotalSent)
	s.ClickRate = rate(s.TotalClicks, s.TotalSent)
	return s, nil
}

func rate(n, sent int64) float64 {
	if sent == 0 {
		return 0
	}
	return float64(n) / float64(sent)
}
