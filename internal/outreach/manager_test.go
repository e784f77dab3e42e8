package outreach_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
)

const userID = int64(1)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*outreach.Manager, *sqlite.SQLiteRepo) {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))

	repo := sqlite.New(d, nil)
	return outreach.NewManager(repo, nil, nil, outreach.WithClock(func() time.Time { return now })), repo
}

func newLead(t *testing.T, m *outreach.Manager) *models.Lead {
	t.Helper()
	l, err := m.Create(context.Background(), userID, outreach.NewLead{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	return l
}

func TestCreate_Validates(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	_, err := m.Create(ctx, userID, outreach.NewLead{Name: "Ana", Email: "nope"})
	assert.ErrorIs(t, err, outreach.ErrInvalidInput)

	_, err = m.Create(ctx, userID, outreach.NewLead{Name: "Ana", Email: "ana@example.com", Phone: "123"})
	assert.ErrorIs(t, err, outreach.ErrInvalidInput)

	l, err := m.Create(ctx, userID, outreach.NewLead{Name: " Ana ", Email: "ana@example.com", Phone: "(650) 253-0000"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", l.Name)
	assert.Equal(t, "+16502530000", l.Phone)
	assert.Equal(t, models.OutreachNoDraft, l.State().Kind)
}

func TestSaveDraft(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	_, err := m.SaveDraft(ctx, userID, 42, models.Draft{Body: "x"})
	assert.ErrorIs(t, err, outreach.ErrNotFound)

	l := newLead(t, m)
	_, err = m.SaveDraft(ctx, userID, l.ID, models.Draft{})
	assert.ErrorIs(t, err, outreach.ErrInvalidInput)

	got, err := m.SaveDraft(ctx, userID, l.ID, models.Draft{Subject: "Hi", Body: "Hi there"})
	require.NoError(t, err)
	require.NotNil(t, got.Outreach)
	assert.Equal(t, "Hi there", *got.Outreach)
	assert.Equal(t, models.OutreachDrafted, got.State().Kind)

	// another tenant cannot touch it
	_, err = m.SaveDraft(ctx, userID+1, l.ID, models.Draft{Body: "mine now"})
	assert.ErrorIs(t, err, outreach.ErrNotFound)
}

func TestSchedule_Errors(t *testing.T) {
	m, repo := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	// time is checked before the draft
	_, err := m.Schedule(ctx, userID, l.ID, now)
	assert.ErrorIs(t, err, outreach.ErrInvalidTime)
	_, err = m.Schedule(ctx, userID, l.ID, now.Add(-time.Minute))
	assert.ErrorIs(t, err, outreach.ErrInvalidTime)

	_, err = m.Schedule(ctx, userID, l.ID, now.Add(time.Hour))
	assert.ErrorIs(t, err, outreach.ErrNoDraft)

	_, err = m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Hi there"})
	require.NoError(t, err)
	got, err := m.Schedule(ctx, userID, l.ID, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got.ScheduledSendAt)
	assert.True(t, got.ScheduledSendAt.Equal(now.Add(time.Hour)))

	// sent wins over everything else
	ok, err := repo.ClaimSend(ctx, l.ID, now.Add(time.Hour), false)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = m.Schedule(ctx, userID, l.ID, now.Add(-time.Hour))
	assert.ErrorIs(t, err, outreach.ErrAlreadySent)
}

func TestCancelSchedule_BeforeTick(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	// nothing scheduled is a no-op
	_, err := m.CancelSchedule(ctx, userID, l.ID)
	require.NoError(t, err)

	_, err = m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Hi there"})
	require.NoError(t, err)
	_, err = m.Schedule(ctx, userID, l.ID, now.Add(time.Hour))
	require.NoError(t, err)

	got, err := m.CancelSchedule(ctx, userID, l.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ScheduledSendAt)
	assert.Nil(t, got.OutreachSentAt)
	require.NotNil(t, got.Outreach)
	assert.Equal(t, "Hi there", *got.Outreach)
	assert.Equal(t, models.OutreachDrafted, got.State().Kind)
}

func TestCancelSchedule_AfterClaim(t *testing.T) {
	m, repo := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	_, err := m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Hi there"})
	require.NoError(t, err)
	_, err = m.Schedule(ctx, userID, l.ID, now.Add(time.Hour))
	require.NoError(t, err)

	ok, err := repo.ClaimSend(ctx, l.ID, now.Add(time.Hour), false)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.CancelSchedule(ctx, userID, l.ID)
	assert.ErrorIs(t, err, outreach.ErrAlreadySent)
}

func TestSaveDraft_AfterSendIsRejected(t *testing.T) {
	m, repo := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	_, err := m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Hi there"})
	require.NoError(t, err)
	ok, err := repo.ClaimSend(ctx, l.ID, now, true)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkSent(ctx, l.ID, now, "id", now.Add(48*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Edited"})
	assert.ErrorIs(t, err, outreach.ErrAlreadySent)

	got, err := m.Get(ctx, userID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", *got.Outreach)

	_, err = m.CancelSchedule(ctx, userID, l.ID)
	assert.ErrorIs(t, err, outreach.ErrAlreadySent)
}

func TestSaveDraft_ClearsSendFailure(t *testing.T) {
	m, repo := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	_, err := m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Hi there"})
	require.NoError(t, err)
	ok, err := repo.ClaimSend(ctx, l.ID, now, true)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, repo.MarkSendFailed(ctx, l.ID, now, "bounced"))

	got, err := m.Get(ctx, userID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutreachSendFailed, got.State().Kind)

	got, err = m.SaveDraft(ctx, userID, l.ID, models.Draft{Body: "Fixed"})
	require.NoError(t, err)
	assert.Equal(t, models.OutreachDrafted, got.State().Kind)
}

func TestListAndDelete(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	a := newLead(t, m)
	newLead(t, m)

	leads, total, err := m.List(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	assert.EqualValues(t, 2, total)

	require.NoError(t, m.Delete(ctx, userID, a.ID))
	assert.ErrorIs(t, m.Delete(ctx, userID, a.ID), outreach.ErrNotFound)
	_, err = m.Get(ctx, userID, a.ID)
	assert.ErrorIs(t, err, outreach.ErrNotFound)
}

func TestUpdateContact(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	l := newLead(t, m)

	got, err := m.UpdateContact(ctx, userID, l.ID, outreach.NewLead{Name: "Ana B", Email: "ana.b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ana.b@example.com", got.Email)

	_, err = m.UpdateContact(ctx, userID+1, l.ID, outreach.NewLead{Name: "X", Email: "x@example.com"})
	assert.ErrorIs(t, err, outreach.ErrNotFound)
}

func TestSendNow_WithoutDispatcher(t *testing.T) {
	m, _ := setup(t)
	_, err := m.SendNow(context.Background(), userID, 1)
	assert.Error(t, err)
}
