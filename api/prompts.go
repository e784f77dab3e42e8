package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/ollama"
	"github.com/garnizeh/outreach/pkg/repository"
)

// Reloader refreshes the drafting engine after prompt or schema edits.
type Reloader interface {
	ReloadSchemas(ctx context.Context) error
	ReloadTemplate(ctx context.Context) error
}

// PromptsHandler administers the AI drafting prompt templates and the
// schemas that model output is checked against.
type PromptsHandler struct {
	schemas   repository.SchemaRepo
	templates repository.TemplateRepo
	engine    Reloader
}

func NewPromptsHandler(schemas repository.SchemaRepo, templates repository.TemplateRepo, engine Reloader) *PromptsHandler {
	return &PromptsHandler{schemas: schemas, templates: templates, engine: engine}
}

func (h *PromptsHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schemas.ListSchemas(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Schema{}
	}
	writeJSON(w, rows, http.StatusOK)
}

type schemaPayload struct {
	Description string          `json:"description,omitempty"`
	SchemaJSON  json.RawMessage `json:"schema_json"`
}

// PutSchema stores the schema under the {version} path variable after
// checking that it compiles.
func (h *PromptsHandler) PutSchema(w http.ResponseWriter, r *http.Request) {
	version := mux.Vars(r)["version"]
	var p schemaPayload
	if err := decodeJSON(w, r, &p); err != nil || version == "" || len(p.SchemaJSON) == 0 {
		writeError(w, "version and schema_json are required", http.StatusBadRequest)
		return
	}

	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(p.SchemaJSON, rs); err != nil {
		writeError(w, fmt.Sprintf("invalid schema: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := h.schemas.CreateSchema(r.Context(), version, p.Description, string(p.SchemaJSON)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptsHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	rows, err := h.templates.ListTemplates(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Template{}
	}
	writeJSON(w, rows, http.StatusOK)
}

type templatePayload struct {
	TemplateTxt string  `json:"template_text"`
	SchemaVer   *string `json:"schema_version,omitempty"`
}

// sampleLead is rendered through every stored template to reject ones that
// reference fields a lead does not have.
var sampleLead = &models.Lead{ID: 1, UserID: 1, Name: "Ada Lovelace", Email: "ada@example.com", Created: time.Unix(0, 0).UTC()}

func (h *PromptsHandler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name, version := vars["name"], vars["version"]

	var p templatePayload
	if err := decodeJSON(w, r, &p); err != nil || p.TemplateTxt == "" {
		writeError(w, "template_text is required", http.StatusBadRequest)
		return
	}
	if len(p.TemplateTxt) > 64*1024 {
		writeError(w, "template too large", http.StatusBadRequest)
		return
	}
	if _, err := ollama.RenderTemplate(p.TemplateTxt, map[string]any{"Lead": sampleLead, "Instructions": ""}); err != nil {
		writeError(w, fmt.Sprintf("invalid template: %v", err), http.StatusBadRequest)
		return
	}
	if p.SchemaVer != nil {
		s, err := h.schemas.GetSchemaByVersion(r.Context(), *p.SchemaVer)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if s == nil {
			writeError(w, "unknown schema_version", http.StatusBadRequest)
			return
		}
	}

	if _, err := h.templates.CreateTemplate(r.Context(), name, version, p.TemplateTxt, p.SchemaVer, nil); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reload makes the drafting engine pick up stored changes.
func (h *PromptsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, "draft generation is not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.engine.ReloadSchemas(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.engine.ReloadTemplate(r.Context()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
