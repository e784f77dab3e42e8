package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/garnizeh/outreach/pkg/ollama"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr           string          `yaml:"addr"`
	JWTSecret      string          `yaml:"jwt_secret"`
	APITimeout     time.Duration   `yaml:"timeout"`
	DatabasePath   string          `yaml:"database_path"`
	MigrateOnStart bool            `yaml:"migrate_on_start"`
	Scheduler      SchedulerConfig `yaml:"scheduler"`
	Dispatch       DispatchConfig  `yaml:"dispatch"`
	FollowUp       FollowUpConfig  `yaml:"followup"`
	Delivery       DeliveryConfig  `yaml:"delivery"`
	Jobs           JobsConfig      `yaml:"jobs"`
	Ollama         ollama.Config   `yaml:"ollama"`
	EngineConfig   EngineConfig    `yaml:"engine"`
}

// SchedulerConfig holds the tick periods. A negative period disables the task.
type SchedulerConfig struct {
	DispatchEvery time.Duration `yaml:"dispatch_every"`
	FollowUpEvery time.Duration `yaml:"followup_every"`
}

type DispatchConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	Workers         int           `yaml:"workers"`
	ClaimTTL        time.Duration `yaml:"claim_ttl"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

type FollowUpConfig struct {
	BatchSize int           `yaml:"batch_size"`
	Workers   int           `yaml:"workers"`
	ClaimTTL  time.Duration `yaml:"claim_ttl"`
	MaxSteps  int           `yaml:"max_steps"`
	Steps     []StepConfig  `yaml:"steps"`
}

// StepConfig overrides one step of the default cadence.
type StepConfig struct {
	Delay   time.Duration `yaml:"delay"`
	Subject string        `yaml:"subject"`
	Body    string        `yaml:"body"`
}

type DeliveryConfig struct {
	// Email is one of "smtp", "sendgrid" or "log".
	Email       string         `yaml:"email"`
	SMTP        SMTPConfig     `yaml:"smtp"`
	SendGrid    SendGridConfig `yaml:"sendgrid"`
	SMSWebhook  WebhookConfig  `yaml:"sms_webhook"`
	RatePerSec  float64        `yaml:"rate_per_second"`
	Burst       int            `yaml:"burst"`
	PhoneRegion string         `yaml:"phone_region"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Lease is how long a running job may stay silent before another worker
	// takes it over.
	Lease time.Duration `yaml:"lease"`
}

type EngineConfig struct {
	Model    string         `yaml:"model"`
	Template PromptTemplate `yaml:"template"`
	Timeout  time.Duration  `yaml:"timeout"`
}

type PromptTemplate struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoadConfig builds the configuration from OUTREACH_* environment variables
// and then applies the YAML file at path, when given, on top.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:           getEnv("OUTREACH_ADDR", ":8080"),
		JWTSecret:      getEnv("OUTREACH_JWT_SECRET", insecureJWTSecret),
		APITimeout:     15 * time.Second,
		DatabasePath:   getEnv("OUTREACH_DATABASE_PATH", "outreach.db"),
		MigrateOnStart: getEnvBool("OUTREACH_MIGRATE_ON_START", true),
		Delivery: DeliveryConfig{
			Email: getEnv("OUTREACH_DELIVERY_EMAIL", "log"),
			SMTP: SMTPConfig{
				Host:     os.Getenv("OUTREACH_SMTP_HOST"),
				Port:     getEnvInt("OUTREACH_SMTP_PORT", 587),
				User:     os.Getenv("OUTREACH_SMTP_USER"),
				Password: os.Getenv("OUTREACH_SMTP_PASSWORD"),
				From:     os.Getenv("OUTREACH_SMTP_FROM"),
			},
			SendGrid: SendGridConfig{
				APIKey:    os.Getenv("OUTREACH_SENDGRID_API_KEY"),
				FromEmail: os.Getenv("OUTREACH_SENDGRID_FROM_EMAIL"),
				FromName:  os.Getenv("OUTREACH_SENDGRID_FROM_NAME"),
			},
			SMSWebhook: WebhookConfig{
				URL:   os.Getenv("OUTREACH_SMS_WEBHOOK_URL"),
				Token: os.Getenv("OUTREACH_SMS_WEBHOOK_TOKEN"),
			},
		},
		Ollama: ollama.Config{BaseURL: os.Getenv("OUTREACH_OLLAMA_URL")},
		EngineConfig: EngineConfig{
			Model: getEnv("OUTREACH_ENGINE_MODEL", "llama3"),
		},
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate fills defaults and rejects unusable settings. The placeholder JWT
// secret is accepted only when OUTREACH_ENV=development.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == insecureJWTSecret && !IsDevelopment() {
		return errors.New("jwt_secret uses the insecure default; set OUTREACH_JWT_SECRET")
	}

	if c.Scheduler.DispatchEvery == 0 {
		c.Scheduler.DispatchEvery = 30 * time.Second
	}
	if c.Scheduler.FollowUpEvery == 0 {
		c.Scheduler.FollowUpEvery = time.Minute
	}

	if c.Dispatch.ClaimTTL <= 0 {
		c.Dispatch.ClaimTTL = 10 * time.Minute
	}
	if c.Dispatch.DeliveryTimeout <= 0 {
		c.Dispatch.DeliveryTimeout = 30 * time.Second
	}
	if c.Dispatch.DeliveryTimeout >= c.Dispatch.ClaimTTL {
		return fmt.Errorf("dispatch.delivery_timeout (%s) must be shorter than dispatch.claim_ttl (%s)", c.Dispatch.DeliveryTimeout, c.Dispatch.ClaimTTL)
	}
	if c.FollowUp.ClaimTTL <= 0 {
		c.FollowUp.ClaimTTL = c.Dispatch.ClaimTTL
	}
	if c.FollowUp.MaxSteps < 0 {
		return errors.New("followup.max_steps must not be negative")
	}
	for i, s := range c.FollowUp.Steps {
		if s.Delay <= 0 || s.Body == "" {
			return fmt.Errorf("followup.steps[%d] needs a positive delay and a body", i)
		}
	}

	switch c.Delivery.Email {
	case "":
		c.Delivery.Email = "log"
	case "log":
	case "smtp":
		if c.Delivery.SMTP.Host == "" || c.Delivery.SMTP.From == "" {
			return errors.New("delivery.smtp requires host and from")
		}
		if c.Delivery.SMTP.Port == 0 {
			c.Delivery.SMTP.Port = 587
		}
	case "sendgrid":
		if c.Delivery.SendGrid.APIKey == "" || c.Delivery.SendGrid.FromEmail == "" {
			return errors.New("delivery.sendgrid requires api_key and from_email")
		}
	default:
		return fmt.Errorf("unknown delivery.email provider %q", c.Delivery.Email)
	}
	if c.Delivery.SMSWebhook.Timeout <= 0 {
		c.Delivery.SMSWebhook.Timeout = 10 * time.Second
	}
	if c.Delivery.PhoneRegion == "" {
		c.Delivery.PhoneRegion = "US"
	}

	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 2
	}
	if c.Jobs.PollInterval <= 0 {
		c.Jobs.PollInterval = 500 * time.Millisecond
	}
	if c.Jobs.Lease <= 0 {
		c.Jobs.Lease = 10 * time.Minute
	}

	def := ollama.DefaultConfig()
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = def.BaseURL
	}
	if c.Ollama.Timeout <= 0 {
		c.Ollama.Timeout = def.Timeout
	}
	if c.Ollama.Retries == 0 {
		c.Ollama.Retries = def.Retries
	}
	if c.Ollama.Backoff <= 0 {
		c.Ollama.Backoff = def.Backoff
	}
	if c.Ollama.CircuitFailureThreshold <= 0 {
		c.Ollama.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if c.Ollama.CircuitReset <= 0 {
		c.Ollama.CircuitReset = def.CircuitReset
	}
	if err := c.Ollama.Validate(); err != nil {
		return err
	}

	if c.EngineConfig.Model == "" {
		return errors.New("engine.model is required")
	}
	if c.EngineConfig.Template.Name == "" {
		c.EngineConfig.Template.Name = "outreach"
	}
	if c.EngineConfig.Template.Version == "" {
		c.EngineConfig.Template.Version = "v1"
	}
	if c.EngineConfig.Timeout <= 0 {
		c.EngineConfig.Timeout = 60 * time.Second
	}
	if c.Jobs.Lease <= c.EngineConfig.Timeout {
		return fmt.Errorf("jobs.lease (%s) must be longer than engine.timeout (%s)", c.Jobs.Lease, c.EngineConfig.Timeout)
	}

	return nil
}

// IsDevelopment reports whether OUTREACH_ENV is "development".
func IsDevelopment() bool {
	return os.Getenv("OUTREACH_ENV") == "development"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}

	return def
}
