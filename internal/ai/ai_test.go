package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/internal/ai"
	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
	"github.com/garnizeh/outreach/pkg/ollama"
)

type fakeGenerator struct {
	out     string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, prompt string) (ollama.GenerateResult, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return ollama.GenerateResult{}, f.err
	}
	return ollama.GenerateResult{Text: f.out}, nil
}

func newRepo(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := db.New(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles))
	return sqlite.New(d, nil)
}

func newEngine(t *testing.T, repo *sqlite.SQLiteRepo, gen *fakeGenerator) *ai.Engine {
	t.Helper()
	e, err := ai.NewEngine(context.Background(), gen, config.EngineConfig{Model: "m"}, repo, repo, nil)
	require.NoError(t, err)
	return e
}

func TestGenerateDraft(t *testing.T) {
	repo := newRepo(t)
	gen := &fakeGenerator{out: "Sure! Here it is:\n```json\n{\"subject\": \" Quick intro \", \"body\": \"Hi Ana, ...\"}\n```"}
	e := newEngine(t, repo, gen)

	lead := &models.Lead{ID: 7, Name: "Ana", Email: "ana@example.com"}
	d, err := e.GenerateDraft(context.Background(), lead, "mention the webinar")
	require.NoError(t, err)
	assert.Equal(t, "Quick intro", d.Subject)
	assert.Equal(t, "Hi Ana, ...", d.Body)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Lead name: Ana")
	assert.Contains(t, gen.prompts[0], "mention the webinar")
}

func TestGenerateDraft_Invalid(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"no json", "I cannot help with that"},
		{"missing body", `{"subject":"x"}`},
		{"empty body", `{"subject":"x","body":""}`},
		{"broken json", `{"subject": "x", "body": }`},
	}
	repo := newRepo(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, repo, &fakeGenerator{out: tt.out})
			_, err := e.GenerateDraft(context.Background(), &models.Lead{Name: "Ana"}, "")
			assert.ErrorIs(t, err, ai.ErrInvalidDraft)
		})
	}
}

func TestGenerateDraft_ClientError(t *testing.T) {
	repo := newRepo(t)
	e := newEngine(t, repo, &fakeGenerator{err: ollama.ErrCircuitOpen})
	_, err := e.GenerateDraft(context.Background(), &models.Lead{Name: "Ana"}, "")
	assert.ErrorIs(t, err, ollama.ErrCircuitOpen)
}

func TestNewEngine_MissingTemplate(t *testing.T) {
	repo := newRepo(t)
	cfg := config.EngineConfig{Model: "m", Template: config.PromptTemplate{Name: "outreach", Version: "v9"}}
	_, err := ai.NewEngine(context.Background(), &fakeGenerator{}, cfg, repo, repo, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not found"))
}

func TestDrafter_HandleGenerate(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	manager := outreach.NewManager(repo, nil, nil)
	lead, err := manager.Create(ctx, 1, outreach.NewLead{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	gen := &fakeGenerator{out: `{"subject":"Hello","body":"Generated body"}`}
	drafter := ai.NewDrafter(newEngine(t, repo, gen), manager, nil)

	payload, _ := json.Marshal(ai.DraftPayload{UserID: 1, LeadID: lead.ID})
	require.NoError(t, drafter.HandleGenerate(ctx, payload))

	got, err := manager.Get(ctx, 1, lead.ID)
	require.NoError(t, err)
	require.True(t, got.HasDraft())
	assert.Equal(t, "Generated body", *got.Outreach)

	// someone else's lead is treated as gone
	payload, _ = json.Marshal(ai.DraftPayload{UserID: 2, LeadID: lead.ID})
	require.NoError(t, drafter.HandleGenerate(ctx, payload))
	assert.Len(t, gen.prompts, 1)
}

func TestDrafter_GeneratorErrorIsRetryable(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	manager := outreach.NewManager(repo, nil, nil)
	lead, err := manager.Create(ctx, 1, outreach.NewLead{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	boom := errors.New("model offline")
	drafter := ai.NewDrafter(newEngine(t, repo, &fakeGenerator{err: boom}), manager, nil)
	payload, _ := json.Marshal(ai.DraftPayload{UserID: 1, LeadID: lead.ID})
	assert.ErrorIs(t, drafter.HandleGenerate(ctx, payload), boom)
}

func TestEngine_ReloadTemplate(t *testing.T) {
	repo := newRepo(t)
	gen := &fakeGenerator{out: `{"subject":"s","body":"b"}`}
	e := newEngine(t, repo, gen)
	ctx := context.Background()

	tpl, err := repo.GetTemplate(ctx, "outreach", "v1")
	require.NoError(t, err)
	_, err = repo.CreateTemplate(ctx, "outreach", "v1", "Reach out to {{.Lead.Name}} briefly.", tpl.SchemaVer, nil)
	require.NoError(t, err)

	// the engine keeps the old text until reloaded
	_, err = e.GenerateDraft(ctx, &models.Lead{Name: "Ana"}, "")
	require.NoError(t, err)
	assert.NotContains(t, gen.prompts[0], "briefly")

	require.NoError(t, e.ReloadTemplate(ctx))
	require.NoError(t, e.ReloadSchemas(ctx))
	_, err = e.GenerateDraft(ctx, &models.Lead{Name: "Ana"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Reach out to Ana briefly.", gen.prompts[1])
}
