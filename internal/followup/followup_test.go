package followup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/followup"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var sentAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type env struct {
	repo     *sqlite.SQLiteRepo
	cadences *followup.Cadences
	fake     *delivery.Fake
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))

	repo := sqlite.New(d, nil)
	cadences, err := followup.NewCadences(repo, nil, 0)
	require.NoError(t, err)
	return &env{repo: repo, cadences: cadences, fake: delivery.NewFake()}
}

// sentLead creates a lead whose initial outreach went out at sentAt.
func (e *env) sentLead(t *testing.T, email string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := e.repo.CreateLead(ctx, &models.Lead{UserID: 1, Name: "Bea", Email: email})
	require.NoError(t, err)
	_, err = e.repo.UpdateDraft(ctx, 1, id, models.Draft{Subject: "Hi", Body: "Intro"}, sentAt)
	require.NoError(t, err)
	ok, err := e.repo.ClaimSend(ctx, id, sentAt, true)
	require.NoError(t, err)
	require.True(t, ok)
	first, err := e.cadences.FirstDelay(ctx, 1)
	require.NoError(t, err)
	ok, err = e.repo.MarkSent(ctx, id, sentAt, "msg-1", sentAt.Add(first))
	require.NoError(t, err)
	require.True(t, ok)
	return id
}

func (e *env) tick(t *testing.T, at time.Time) followup.TickStats {
	t.Helper()
	s := followup.NewSequencer(e.repo, e.cadences, e.fake, followup.Config{}, nil)
	s.SetClock(func() time.Time { return at })
	stats, err := s.Tick(context.Background())
	require.NoError(t, err)
	return stats
}

func (e *env) lead(t *testing.T, id int64) *models.Lead {
	t.Helper()
	l, err := e.repo.GetLeadByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func TestTick_CadenceIsBounded(t *testing.T) {
	e := newEnv(t)
	id := e.sentLead(t, "bea@example.com")

	// nothing is due before the first delay
	assert.Equal(t, followup.TickStats{}, e.tick(t, sentAt.Add(47*time.Hour)))

	at := sentAt
	for i, step := range followup.DefaultSteps {
		at = at.Add(step.Delay)
		stats := e.tick(t, at)
		assert.Equal(t, 1, stats.Sent, "step %d", i+1)

		l := e.lead(t, id)
		assert.Equal(t, i+2, l.FollowUpStep)
		require.NotNil(t, l.FollowUpLastSentAt)
		assert.True(t, l.FollowUpLastSentAt.Equal(at))
		if i < len(followup.DefaultSteps)-1 {
			assert.Equal(t, models.FollowUpActive, l.FollowUpStatus)
			require.NotNil(t, l.FollowUpNextAt)
			assert.True(t, l.FollowUpNextAt.Equal(at.Add(followup.DefaultSteps[i+1].Delay)))
		} else {
			assert.Equal(t, models.FollowUpStopped, l.FollowUpStatus)
			assert.Nil(t, l.FollowUpNextAt)
		}
	}

	// no fifth touch, however long we wait
	assert.Equal(t, followup.TickStats{}, e.tick(t, at.Add(365*24*time.Hour)))
	assert.Equal(t, len(followup.DefaultSteps), e.fake.SentTo("bea@example.com"))

	sent := e.fake.Sent()
	assert.Equal(t, "Following up", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Hi Bea,")
}

func TestTick_ReplyStopsCadence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.sentLead(t, "bea@example.com")

	_, err := e.repo.AppendEvent(ctx, &models.EmailEvent{LeadID: id, UserID: 1, Type: models.EventReply, Created: sentAt.Add(time.Hour)})
	require.NoError(t, err)

	stats := e.tick(t, sentAt.Add(48*time.Hour))
	assert.Equal(t, followup.TickStats{Stopped: 1}, stats)
	assert.Empty(t, e.fake.Sent())

	l := e.lead(t, id)
	assert.Equal(t, models.FollowUpStopped, l.FollowUpStatus)
	assert.Empty(t, l.FollowUpError)
}

func TestTick_ReplyBeforeLastTouchIsIgnored(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.sentLead(t, "bea@example.com")

	at := sentAt.Add(48 * time.Hour)
	require.Equal(t, 1, e.tick(t, at).Sent)

	// a reply that predates the sent outreach does not count
	_, err := e.repo.AppendEvent(ctx, &models.EmailEvent{LeadID: id, UserID: 1, Type: models.EventReply, Created: sentAt.Add(-time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, 1, e.tick(t, at.Add(96*time.Hour)).Sent)
}

func TestTick_HotLeadStops(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.sentLead(t, "bea@example.com")

	_, err := e.repo.ApplyEngagement(ctx, id, models.Engagement{Score: 6, Level: models.LevelHot, Clicks: 2, NextStep: "call"}, 1, sentAt)
	require.NoError(t, err)

	assert.Equal(t, followup.TickStats{Stopped: 1}, e.tick(t, sentAt.Add(48*time.Hour)))
	assert.Empty(t, e.fake.Sent())
}

func TestTick_FailureStopsCadence(t *testing.T) {
	e := newEnv(t)
	id := e.sentLead(t, "bea@example.com")
	e.fake.Reject["bea@example.com"] = "mailbox full"

	assert.Equal(t, followup.TickStats{Failed: 1}, e.tick(t, sentAt.Add(48*time.Hour)))

	l := e.lead(t, id)
	assert.Equal(t, models.FollowUpStopped, l.FollowUpStatus)
	assert.Equal(t, "mailbox full", l.FollowUpError)
	assert.Equal(t, 1, l.FollowUpStep)

	delete(e.fake.Reject, "bea@example.com")
	assert.Equal(t, followup.TickStats{}, e.tick(t, sentAt.Add(30*24*time.Hour)))
}

func TestTick_ParallelSequencersSendOnce(t *testing.T) {
	e := newEnv(t)
	for _, addr := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		e.sentLead(t, addr)
	}

	at := sentAt.Add(48 * time.Hour)
	done := make(chan followup.TickStats, 4)
	for range 4 {
		go func() {
			s := followup.NewSequencer(e.repo, e.cadences, e.fake, followup.Config{}, nil)
			s.SetClock(func() time.Time { return at })
			stats, _ := s.Tick(context.Background())
			done <- stats
		}()
	}
	total := 0
	for range 4 {
		total += (<-done).Sent
	}
	assert.Equal(t, 3, total)
	assert.Len(t, e.fake.Sent(), 3)
}

func TestTick_CustomCadence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.cadences.Put(ctx, 1, []byte(`{"steps":[{"delay_hours":24,"subject":"Step {{.Step}}","body":"Hello {{.Name}}"}]}`))
	require.NoError(t, err)
	id := e.sentLead(t, "bea@example.com")

	l := e.lead(t, id)
	require.NotNil(t, l.FollowUpNextAt)
	assert.True(t, l.FollowUpNextAt.Equal(sentAt.Add(24*time.Hour)))

	assert.Equal(t, 1, e.tick(t, sentAt.Add(24*time.Hour)).Sent)
	sent := e.fake.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Step 1", sent[0].Subject)
	assert.Equal(t, "Hello Bea", sent[0].Body)
	assert.Equal(t, models.FollowUpStopped, e.lead(t, id).FollowUpStatus)
}

func TestCadences_Put(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"steps":`},
		{"empty steps", `{"steps":[]}`},
		{"missing body", `{"steps":[{"delay_hours":24}]}`},
		{"zero delay", `{"steps":[{"delay_hours":0,"body":"x"}]}`},
		{"unknown field", `{"steps":[{"delay_hours":1,"body":"x","channel":"sms"}]}`},
		{"too many steps", `{"steps":[{"delay_hours":1,"body":"a"},{"delay_hours":1,"body":"b"},{"delay_hours":1,"body":"c"},{"delay_hours":1,"body":"d"},{"delay_hours":1,"body":"e"}]}`},
		{"bad template", `{"steps":[{"delay_hours":1,"body":"Hi {{.Name"}]}`},
		{"unknown body field", `{"steps":[{"delay_hours":1,"body":"Hi {{.Company}}"}]}`},
		{"unknown subject field", `{"steps":[{"delay_hours":1,"subject":"{{.Title}}","body":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.cadences.Put(ctx, 1, []byte(tt.raw))
			assert.True(t, errors.Is(err, followup.ErrInvalidCadence), "got %v", err)
		})
	}

	steps, err := e.cadences.Steps(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, followup.DefaultSteps, steps)

	steps, err = e.cadences.Put(ctx, 1, []byte(`{"steps":[{"delay_hours":12,"body":"a"},{"delay_hours":36,"subject":"b","body":"b"}]}`))
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 2, steps[1].Order)
	assert.Equal(t, 36*time.Hour, steps[1].Delay)

	other, err := e.cadences.Steps(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, followup.DefaultSteps, other)
}

func TestNewCadences_RejectsUnrenderableDefaults(t *testing.T) {
	e := newEnv(t)
	_, err := followup.NewCadences(e.repo, []models.CadenceStep{
		{Order: 1, Delay: time.Hour, Body: "Hi {{.Company}}"},
	}, 0)
	assert.True(t, errors.Is(err, followup.ErrInvalidCadence), "got %v", err)
}

func TestNewCadences_TruncatesDefaults(t *testing.T) {
	e := newEnv(t)
	c, err := followup.NewCadences(e.repo, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.MaxSteps())

	steps, err := c.Steps(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}
