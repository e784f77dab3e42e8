package models

import (
	"encoding/json"
	"time"
)

// EngagementLevel buckets an engagement score.
type EngagementLevel string

const (
	LevelNone       EngagementLevel = "none"
	LevelInterested EngagementLevel = "interested"
	LevelWarm       EngagementLevel = "warm"
	LevelHot        EngagementLevel = "hot"
)

// Levels lists every engagement level in ascending order.
var Levels = []EngagementLevel{LevelNone, LevelInterested, LevelWarm, LevelHot}

// FollowUpStatus is the state of a lead's follow-up cadence.
type FollowUpStatus string

const (
	FollowUpInactive FollowUpStatus = "inactive"
	FollowUpActive   FollowUpStatus = "active"
	FollowUpStopped  FollowUpStatus = "stopped"
)

// EventType is the kind of a tracked delivery event.
type EventType string

const (
	EventOpen   EventType = "open"
	EventClick  EventType = "click"
	EventBounce EventType = "bounce"
	EventReply  EventType = "reply"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventOpen, EventClick, EventBounce, EventReply:
		return true
	}
	return false
}

// Lead is a prospective contact owned by one user, together with its outreach,
// engagement and follow-up state.
type Lead struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	Outreach          *string    `json:"outreach,omitempty"`
	OutreachSubject   *string    `json:"outreach_subject,omitempty"`
	ScheduledSendAt   *time.Time `json:"scheduled_send_at,omitempty"`
	OutreachSentAt    *time.Time `json:"outreach_sent_at,omitempty"`
	SendClaimedAt     *time.Time `json:"-"`
	SendFailedAt      *time.Time `json:"send_failed_at,omitempty"`
	SendError         string     `json:"send_error,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`

	EmailOpens      int             `json:"email_opens"`
	EmailClicks     int             `json:"email_clicks"`
	EngagementScore int             `json:"engagement_score"`
	EngagementLevel EngagementLevel `json:"engagement_level"`
	LastEngagedAt   *time.Time      `json:"last_engaged_at,omitempty"`
	NextStep        string          `json:"next_step"`
	Unreachable     bool            `json:"unreachable"`
	ScoredEventID   int64           `json:"-"`

	FollowUpStep       int            `json:"followup_step"`
	FollowUpStatus     FollowUpStatus `json:"followup_status"`
	FollowUpNextAt     *time.Time     `json:"followup_next_at,omitempty"`
	FollowUpLastSentAt *time.Time     `json:"followup_last_sent_at,omitempty"`
	FollowUpClaimedAt  *time.Time     `json:"-"`
	FollowUpError      string         `json:"followup_error,omitempty"`
}

// HasDraft reports whether the lead carries non-empty outreach content.
func (l *Lead) HasDraft() bool {
	return l.Outreach != nil && *l.Outreach != ""
}

// IsSent reports whether the outreach was delivered.
func (l *Lead) IsSent() bool {
	return l.OutreachSentAt != nil
}

// OutreachKind names the variants of OutreachState.
type OutreachKind string

const (
	OutreachNoDraft    OutreachKind = "no_draft"
	OutreachDrafted    OutreachKind = "drafted"
	OutreachScheduled  OutreachKind = "scheduled"
	OutreachSending    OutreachKind = "sending"
	OutreachSent       OutreachKind = "sent"
	OutreachSendFailed OutreachKind = "send_failed"
)

// StaleClaimReason is recorded on leads whose send claim expired before the
// delivery was confirmed.
const StaleClaimReason = "delivery outcome unknown"

// OutreachState is the explicit state of a lead's outreach. At is set for
// scheduled, sending, sent and send_failed; Reason only for send_failed.
type OutreachState struct {
	Kind   OutreachKind `json:"kind"`
	At     *time.Time   `json:"at,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// State derives the outreach state. Sent wins over everything else because
// outreach_sent_at is immutable once written.
func (l *Lead) State() OutreachState {
	switch {
	case l.OutreachSentAt != nil:
		return OutreachState{Kind: OutreachSent, At: l.OutreachSentAt}
	case l.SendClaimedAt != nil:
		return OutreachState{Kind: OutreachSending, At: l.SendClaimedAt}
	case l.SendFailedAt != nil:
		return OutreachState{Kind: OutreachSendFailed, At: l.SendFailedAt, Reason: l.SendError}
	case l.ScheduledSendAt != nil:
		return OutreachState{Kind: OutreachScheduled, At: l.ScheduledSendAt}
	case l.HasDraft():
		return OutreachState{Kind: OutreachDrafted}
	default:
		return OutreachState{Kind: OutreachNoDraft}
	}
}

// MarshalJSON adds the derived outreach state to the lead representation.
func (l Lead) MarshalJSON() ([]byte, error) {
	type plain Lead
	return json.Marshal(struct {
		plain
		OutreachState OutreachState `json:"outreach_state"`
	}{plain: plain(l), OutreachState: l.State()})
}

// Draft is the editable outreach content of a lead.
type Draft struct {
	Subject string `json:"subject" validate:"max=200"`
	Body    string `json:"body" validate:"required,max=5000"`
}

// EmailEvent is one tracked interaction with a delivered message. Events are
// append-only.
type EmailEvent struct {
	ID      int64     `json:"id"`
	LeadID  int64     `json:"lead_id"`
	UserID  int64     `json:"user_id"`
	Type    EventType `json:"type"`
	Created time.Time `json:"created"`
}

// Engagement is the result of scoring a lead's event history.
type Engagement struct {
	Opens         int             `json:"opens"`
	Clicks        int             `json:"clicks"`
	Score         int             `json:"score"`
	Level         EngagementLevel `json:"level"`
	LastEngagedAt *time.Time      `json:"last_engaged_at,omitempty"`
	Unreachable   bool            `json:"unreachable"`
	NextStep      string          `json:"next_step"`
}

// CadenceStep is one scripted follow-up touch.
type CadenceStep struct {
	Order   int           `json:"step_order"`
	Delay   time.Duration `json:"-"`
	Subject string        `json:"subject"`
	Body    string        `json:"body"`
}

// DelayHours reports the step delay in whole hours.
func (s CadenceStep) DelayHours() int {
	return int(s.Delay / time.Hour)
}

// EngagementSummary is the per-user analytics rollup.
type EngagementSummary struct {
	TotalSent      int64                     `json:"total_sent"`
	TotalOpens     int64                     `json:"total_opens"`
	TotalClicks    int64                     `json:"total_clicks"`
	Engaged        int64                     `json:"engaged"`
	OpenRate       float64                   `json:"open_rate"`
	ClickRate      float64                   `json:"click_rate"`
	Levels         map[EngagementLevel]int64 `json:"levels"`
	Scheduled      int64                     `json:"scheduled"`
	SendFailed     int64                     `json:"send_failed"`
	FollowUpActive int64                     `json:"followup_active"`
}

// BatchResult reports the outcome of a "send all due" run.
type BatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Schema struct {
	ID          int64  `json:"id" db:"id"`
	Version     string `json:"version" db:"version"`
	Description string `json:"description,omitempty" db:"description"`
	SchemaJSON  string `json:"schema_json" db:"schema_json"`
	Created     int64  `json:"created" db:"created"`
	Updated     int64  `json:"updated" db:"updated"`
}

type Template struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Version     string  `json:"version" db:"version"`
	TemplateTxt string  `json:"template_text" db:"template_text"`
	SchemaVer   *string `json:"schema_version,omitempty" db:"schema_version"`
	Metadata    *string `json:"metadata,omitempty" db:"metadata"`
	Created     int64   `json:"created" db:"created"`
	Updated     int64   `json:"updated" db:"updated"`
}

type BackgroundJob struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
	Updated     time.Time       `json:"updated"`
}
