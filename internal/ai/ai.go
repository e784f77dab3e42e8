package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/ollama"
	"github.com/garnizeh/outreach/pkg/repository"
)

// ErrInvalidDraft is returned when the model output cannot be used as a draft.
var ErrInvalidDraft = errors.New("model returned an invalid draft")

// Generator is the part of the Ollama client the engine needs.
type Generator interface {
	Generate(ctx context.Context, model string, prompt string) (ollama.GenerateResult, error)
}

// Engine renders the drafting prompt for a lead, asks the model, and checks
// the answer against the schema the template names.
type Engine struct {
	client    Generator
	cfg       config.EngineConfig
	loader    *Loader
	templates repository.TemplateRepo
	logger    *slog.Logger

	mu        sync.RWMutex
	template  string
	schemaVer string
}

// NewEngine loads the prompt template named by cfg and the compiled schemas.
func NewEngine(ctx context.Context, client Generator, cfg config.EngineConfig, sr repository.SchemaRepo, tr repository.TemplateRepo, logger *slog.Logger) (*Engine, error) {
	if cfg.Template.Name == "" {
		cfg.Template.Name = "outreach"
	}
	if cfg.Template.Version == "" {
		cfg.Template.Version = "v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	if client == nil {
		return nil, fmt.Errorf("ollama client is required")
	}
	if sr == nil {
		return nil, fmt.Errorf("schema repo is required")
	}
	if tr == nil {
		return nil, fmt.Errorf("template repo is required")
	}

	loader, err := NewLoader(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("create loader: %w", err)
	}

	e := &Engine{
		client:    client,
		cfg:       cfg,
		loader:    loader,
		templates: tr,
		logger:    logger,
	}
	if err := e.ReloadTemplate(ctx); err != nil {
		return nil, err
	}

	return e, nil
}

// ReloadTemplate fetches the configured prompt template again, so edits made
// through the admin API apply without a restart.
func (e *Engine) ReloadTemplate(ctx context.Context) error {
	name, version := e.cfg.Template.Name, e.cfg.Template.Version
	tpl, err := e.templates.GetTemplate(ctx, name, version)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	if tpl == nil || tpl.TemplateTxt == "" {
		return fmt.Errorf("template %s:%s not found", name, version)
	}
	if tpl.SchemaVer == nil || *tpl.SchemaVer == "" {
		return fmt.Errorf("template %s:%s has no schema version", name, version)
	}

	e.mu.Lock()
	e.template = tpl.TemplateTxt
	e.schemaVer = *tpl.SchemaVer
	e.mu.Unlock()
	return nil
}

// GenerateDraft asks the model for a first-touch draft for the lead.
func (e *Engine) GenerateDraft(ctx context.Context, lead *models.Lead, instructions string) (models.Draft, error) {
	var empty models.Draft

	e.mu.RLock()
	tplText, schemaVer := e.template, e.schemaVer
	e.mu.RUnlock()

	prompt, err := ollama.RenderTemplate(tplText, map[string]any{"Lead": lead, "Instructions": instructions})
	if err != nil {
		return empty, fmt.Errorf("render template: %w", err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.client.Generate(ctxReq, e.cfg.Model, prompt)
	if err != nil {
		return empty, fmt.Errorf("generate: %w", err)
	}

	j := extractJSON(out.Text)
	if j == "" {
		e.logger.Warn("ai: no JSON object in model output", slog.Int64("lead_id", lead.ID), slog.String("raw", out.Text))
		return empty, fmt.Errorf("%w: no JSON object found", ErrInvalidDraft)
	}

	if err := e.loader.Validate(ctxReq, schemaVer, []byte(j)); err != nil {
		return empty, err
	}

	var d models.Draft
	if err := json.Unmarshal([]byte(j), &d); err != nil {
		return empty, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)

	e.logger.Info("ai: draft generated", slog.Int64("lead_id", lead.ID), slog.Any("meta", out.Meta))
	return d, nil
}

func (e *Engine) ReloadSchemas(ctx context.Context) error {
	return e.loader.Reload(ctx)
}

// extractJSON returns the substring from the first '{' to the last '}' in the input.
// Models often wrap the object in prose or a markdown fence.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
