// Package demo fills an empty account with plausible leads for trying the
// engine out.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/models"
)

// Store is the part of the lead repository the seeder writes through.
type Store interface {
	SeedDemoLeads(ctx context.Context, userID int64, leads []models.Lead) (int, error)
}

// Leads generates n fake leads. The same seed yields the same leads. Roughly
// every third lead gets a ready draft and about half get a phone number.
func Leads(n int, seed int64) []models.Lead {
	f := gofakeit.New(seed)
	out := make([]models.Lead, 0, n)
	for i := 0; i < n; i++ {
		first, last := f.FirstName(), f.LastName()
		l := models.Lead{
			Name:  first + " " + last,
			Email: fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), i, f.DomainName()),
		}
		if f.Bool() {
			// generated numbers that are not valid US numbers are dropped
			if e164, err := delivery.NormalizePhone(f.Phone(), "US"); err == nil {
				l.Phone = e164
			}
		}
		if i%3 == 0 {
			body := fmt.Sprintf("Hi %s, I noticed %s is growing fast. %s Would a short call next week work?", first, f.Company(), f.HipsterSentence(8))
			l.Outreach = &body
		}
		out = append(out, l)
	}
	return out
}

// Seed inserts n demo leads for userID unless the user already has leads.
// It returns how many were inserted.
func Seed(ctx context.Context, store Store, userID int64, n int, seed int64, logger *slog.Logger) (int, error) {
	if userID <= 0 {
		return 0, fmt.Errorf("demo: invalid user id %d", userID)
	}
	if logger == nil {
		logger = slog.Default()
	}

	inserted, err := store.SeedDemoLeads(ctx, userID, Leads(n, seed))
	if err != nil {
		return 0, fmt.Errorf("seed demo leads: %w", err)
	}
	if inserted == 0 {
		logger.Info("demo: user already has leads, nothing seeded", slog.Int64("user_id", userID))
	} else {
		logger.Info("demo: seeded leads", slog.Int64("user_id", userID), slog.Int("count", inserted))
	}
	return inserted, nil
}
