package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/outreach/pkg/repository"
)

// Loader keeps the compiled response schemas, keyed by version.
type Loader struct {
	repo repository.SchemaRepo

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func NewLoader(ctx context.Context, r repository.SchemaRepo) (*Loader, error) {
	l := &Loader{repo: r, cache: map[string]*jsonschema.Schema{}}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Loader) GetSchema(version string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.cache[version]
	return s, ok
}

// Validate checks doc against the schema for version. Schema violations are
// reported as ErrInvalidDraft.
func (l *Loader) Validate(ctx context.Context, version string, doc []byte) error {
	s, ok := l.GetSchema(version)
	if !ok {
		return fmt.Errorf("no schema for version %s", version)
	}

	verrs, err := s.ValidateBytes(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if len(verrs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(verrs))
	for _, v := range verrs {
		msgs = append(msgs, strings.TrimSpace(v.PropertyPath+" "+v.Message))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(msgs, "; "))
}

// Reload compiles every stored schema. On error the previous set stays in
// use.
func (l *Loader) Reload(ctx context.Context) error {
	rows, err := l.repo.ListSchemas(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	next := make(map[string]*jsonschema.Schema, len(rows))
	for _, r := range rows {
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(r.SchemaJSON), rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", r.Version, err)
		}
		next[r.Version] = rs
	}

	l.mu.Lock()
	l.cache = next
	l.mu.Unlock()
	return nil
}
