package repository

import (
	"context"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

// Repository interfaces for the outreach engine. These are the contracts the
// services depend on; the SQLite implementation lives under internal/.
//
// Lookups return nil, nil for a missing row. Conditional writes return false
// when their guard did not match, leaving the caller to decide why.

type LeadRepo interface {
	CreateLead(ctx context.Context, l *models.Lead) (int64, error)
	GetLead(ctx context.Context, userID, id int64) (*models.Lead, error)
	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)
	ListLeads(ctx context.Context, userID int64, limit, offset int) ([]models.Lead, error)
	CountLeads(ctx context.Context, userID int64) (int64, error)
	UpdateContact(ctx context.Context, userID, id int64, name, email, phone string, now time.Time) (bool, error)
	DeleteLead(ctx context.Context, userID, id int64) (bool, error)
	SeedDemoLeads(ctx context.Context, userID int64, leads []models.Lead) (int, error)
}

type DraftRepo interface {
	UpdateDraft(ctx context.Context, userID, id int64, d models.Draft, now time.Time) (bool, error)
	SetSchedule(ctx context.Context, userID, id int64, when, now time.Time) (bool, error)
	ClearSchedule(ctx context.Context, userID, id int64, now time.Time) (bool, error)
}

type DispatchRepo interface {
	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Lead, error)
	ListDueForUser(ctx context.Context, userID int64, now time.Time) ([]models.Lead, error)
	ClaimSend(ctx context.Context, id int64, now time.Time, direct bool) (bool, error)
	MarkSent(ctx context.Context, id int64, now time.Time, providerMessageID string, followUpNextAt time.Time) (bool, error)
	MarkSendFailed(ctx context.Context, id int64, now time.Time, reason string) error
	FailStaleClaims(ctx context.Context, claimedBefore, now time.Time, reason string) (int64, error)
}

type FollowUpRepo interface {
	GetLeadByID(ctx context.Context, id int64) (*models.Lead, error)
	ListFollowUpsDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.Lead, error)
	ClaimFollowUp(ctx context.Context, id int64, step int, now, staleBefore time.Time) (bool, error)
	AdvanceFollowUp(ctx context.Context, id int64, step int, now time.Time, nextAt *time.Time) (bool, error)
	StopFollowUp(ctx context.Context, id int64, now time.Time, failure string) error
	HasReplySince(ctx context.Context, leadID int64, since time.Time) (bool, error)
}

type EventRepo interface {
	AppendEvent(ctx context.Context, e *models.EmailEvent) (int64, error)
	ListEvents(ctx context.Context, leadID int64) ([]models.EmailEvent, error)
	ApplyEngagement(ctx context.Context, leadID int64, e models.Engagement, upToEventID int64, now time.Time) (bool, error)
}

type CadenceRepo interface {
	GetCadence(ctx context.Context, userID int64) ([]models.CadenceStep, error)
	ReplaceCadence(ctx context.Context, userID int64, steps []models.CadenceStep) error
}

type AnalyticsRepo interface {
	EngagementCounts(ctx context.Context, userID int64) (*models.EngagementSummary, error)
}

type SchemaRepo interface {
	CreateSchema(ctx context.Context, version, description, schemaJSON string) (int64, error)
	GetSchemaByVersion(ctx context.Context, version string) (*models.Schema, error)
	ListSchemas(ctx context.Context) ([]models.Schema, error)
	DeleteSchema(ctx context.Context, version string) error
}

type TemplateRepo interface {
	CreateTemplate(ctx context.Context, name, version, templateText string, schemaVersion *string, metadata *string) (int64, error)
	GetTemplate(ctx context.Context, name, version string) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]models.Template, error)
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}
