package ollama

import (
	"errors"
	"net/url"
	"time"
)

// Config tunes the client. Timeout bounds each attempt; after
// CircuitFailureThreshold consecutive failures calls fail fast with
// ErrCircuitOpen for CircuitReset.
type Config struct {
	BaseURL                 string        `yaml:"base_url" json:"base_url"`
	Timeout                 time.Duration `yaml:"timeout" json:"timeout"`
	Retries                 int           `yaml:"retries" json:"retries"`
	Backoff                 time.Duration `yaml:"backoff" json:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset" json:"circuit_reset"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:11434",
		Timeout:                 60 * time.Second,
		Retries:                 2,
		Backoff:                 time.Second,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

// Validate rejects settings the client cannot work with.
func (c Config) Validate() error {
	u, err := url.ParseRequestURI(c.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("ollama: base_url must be an absolute URL")
	}
	if c.Retries < 0 {
		return errors.New("ollama: retries must not be negative")
	}
	if c.Timeout < 0 || c.Backoff < 0 {
		return errors.New("ollama: timeout and backoff must not be negative")
	}
	return nil
}
