package ollama

import (
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

type closeRecorder struct{ called int32 }

func (t *closeRecorder) RoundTrip(*http.Request) (*http.Response, error) { panic("not used") }
func (t *closeRecorder) CloseIdleConnections()                          { atomic.AddInt32(&t.called, 1) }

func TestClient_CloseIsIdempotent(t *testing.T) {
	tr := &closeRecorder{}
	c, err := NewClient(Config{BaseURL: "http://localhost:11434", Timeout: 1}, &http.Client{Transport: tr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if got := atomic.LoadInt32(&tr.called); got != 1 {
		t.Fatalf("expected CloseIdleConnections once, got %d", got)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatal("expected error for bad base url")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"relative url", func(c *Config) { c.BaseURL = "/api" }, true},
		{"negative retries", func(c *Config) { c.Retries = -1 }, true},
		{"negative backoff", func(c *Config) { c.Backoff = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type promptLead struct {
	Name  string
	Email string
}

func TestRenderTemplate(t *testing.T) {
	data := map[string]any{"Lead": promptLead{Name: "Ana", Email: "ana@example.com"}, "Instructions": "keep it short"}

	out, err := RenderTemplate("Write to {{.Lead.Name}} <{{.Lead.Email}}>.{{if .Instructions}} {{.Instructions}}{{end}}", data)
	if err != nil {
		t.Fatalf("RenderTemplate: %v", err)
	}
	if out != "Write to Ana <ana@example.com>. keep it short" {
		t.Fatalf("unexpected output %q", out)
	}

	if _, err := RenderTemplate("{{.Lead.Name", data); err == nil {
		t.Fatal("expected parse error")
	}
	_, err = RenderTemplate("{{.Lead.Company}}", data)
	if err == nil || !strings.Contains(err.Error(), "Company") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}
