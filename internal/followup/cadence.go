package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/repository"
)

// DefaultMaxSteps bounds the cadence when no maximum is configured.
const DefaultMaxSteps = 4

// ErrInvalidCadence wraps cadence validation failures.
var ErrInvalidCadence = errors.New("invalid cadence")

// DefaultSteps is the cadence used for users who never customized theirs:
// touches 2, 4, 7 and 14 days apart.
var DefaultSteps = []models.CadenceStep{
	{Order: 1, Delay: 48 * time.Hour, Subject: "Following up", Body: "Hi {{.Name}}, just checking whether my last note reached you."},
	{Order: 2, Delay: 96 * time.Hour, Subject: "Quick question", Body: "Hi {{.Name}}, is this something worth a short call this week?"},
	{Order: 3, Delay: 168 * time.Hour, Subject: "Still interested?", Body: "Hi {{.Name}}, happy to send more details if the timing is better now."},
	{Order: 4, Delay: 336 * time.Hour, Subject: "Closing the loop", Body: "Hi {{.Name}}, I will stop reaching out for now. Reply any time if things change."},
}

// StepInput is the wire form of one step in a cadence update.
type StepInput struct {
	DelayHours int    `json:"delay_hours"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

// CadenceInput is the body of a cadence update.
type CadenceInput struct {
	Steps []StepInput `json:"steps"`
}

const cadenceSchemaTpl = `{
	"type": "object",
	"required": ["steps"],
	"additionalProperties": false,
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 1,
			"maxItems": %d,
			"items": {
				"type": "object",
				"required": ["delay_hours", "body"],
				"additionalProperties": false,
				"properties": {
					"delay_hours": {"type": "integer", "minimum": 1, "maximum": 8760},
					"subject": {"type": "string", "maxLength": 200},
					"body": {"type": "string", "minLength": 1, "maxLength": 5000}
				}
			}
		}
	}
}`

// Cadences resolves and stores per-user follow-up cadences.
type Cadences struct {
	repo     repository.CadenceRepo
	defaults []models.CadenceStep
	maxSteps int
	schema   *jsonschema.Schema
}

// NewCadences builds the cadence service. A nil or empty defaults slice uses
// DefaultSteps; maxSteps <= 0 uses DefaultMaxSteps.
func NewCadences(repo repository.CadenceRepo, defaults []models.CadenceStep, maxSteps int) (*Cadences, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if len(defaults) == 0 {
		defaults = DefaultSteps
	}

	for _, st := range defaults {
		if err := checkStep(st.Subject, st.Body); err != nil {
			return nil, fmt.Errorf("%w: default step %d: %v", ErrInvalidCadence, st.Order, err)
		}
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(fmt.Sprintf(cadenceSchemaTpl, maxSteps)), rs); err != nil {
		return nil, fmt.Errorf("compile cadence schema: %w", err)
	}

	return &Cadences{repo: repo, defaults: truncate(defaults, maxSteps), maxSteps: maxSteps, schema: rs}, nil
}

// MaxSteps is the configured cadence bound.
func (c *Cadences) MaxSteps() int { return c.maxSteps }

// Steps returns the user's cadence, falling back to the defaults. The result
// never exceeds the configured maximum.
func (c *Cadences) Steps(ctx context.Context, userID int64) ([]models.CadenceStep, error) {
	steps, err := c.repo.GetCadence(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cadence: %w", err)
	}
	if len(steps) == 0 {
		return c.defaults, nil
	}
	return truncate(steps, c.maxSteps), nil
}

// FirstDelay is the wait between the initial outreach and the first follow-up.
func (c *Cadences) FirstDelay(ctx context.Context, userID int64) (time.Duration, error) {
	steps, err := c.Steps(ctx, userID)
	if err != nil {
		return 0, err
	}
	return steps[0].Delay, nil
}

// Put validates raw against the cadence schema and replaces the user's steps.
func (c *Cadences) Put(ctx context.Context, userID int64, raw []byte) ([]models.CadenceStep, error) {
	verrs, err := c.schema.ValidateBytes(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCadence, err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s %s", v.PropertyPath, v.Message))
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidCadence, strings.Join(msgs, "; "))
	}

	var in CadenceInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCadence, err)
	}

	steps := make([]models.CadenceStep, 0, len(in.Steps))
	for i, s := range in.Steps {
		if err := checkStep(s.Subject, s.Body); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrInvalidCadence, i+1, err)
		}
		steps = append(steps, models.CadenceStep{
			Order:   i + 1,
			Delay:   time.Duration(s.DelayHours) * time.Hour,
			Subject: s.Subject,
			Body:    s.Body,
		})
	}

	if err := c.repo.ReplaceCadence(ctx, userID, steps); err != nil {
		return nil, fmt.Errorf("save cadence: %w", err)
	}
	return steps, nil
}

func truncate(steps []models.CadenceStep, max int) []models.CadenceStep {
	if len(steps) > max {
		return steps[:max]
	}
	return steps
}

type stepTemplates struct {
	subject *template.Template
	body    *template.Template
}

func parseStep(subject, body string) (*stepTemplates, error) {
	st, err := template.New("subject").Option("missingkey=zero").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("subject template: %w", err)
	}
	bt, err := template.New("body").Option("missingkey=zero").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("body template: %w", err)
	}
	return &stepTemplates{subject: st, body: bt}, nil
}

// checkStep parses the step templates and executes them against a sample
// lead, so a reference to an unknown field fails on write.
func checkStep(subject, body string) error {
	tpl, err := parseStep(subject, body)
	if err != nil {
		return err
	}
	sample := touchData{Name: "Sample Lead", Email: "lead@example.com", Step: 1}
	if err := tpl.subject.Execute(io.Discard, sample); err != nil {
		return fmt.Errorf("subject template: %w", err)
	}
	if err := tpl.body.Execute(io.Discard, sample); err != nil {
		return fmt.Errorf("body template: %w", err)
	}
	return nil
}

// touchData is what step templates can reference.
type touchData struct {
	Name  string
	Email string
	Step  int
}

// render fills the step templates for one lead.
func render(step models.CadenceStep, l *models.Lead) (string, string, error) {
	tpl, err := parseStep(step.Subject, step.Body)
	if err != nil {
		return "", "", err
	}

	data := touchData{Name: l.Name, Email: l.Email, Step: step.Order}
	var subject, body strings.Builder
	if err := tpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := tpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return subject.String(), body.String(), nil
}
