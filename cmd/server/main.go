package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/api"
	"github.com/garnizeh/outreach/internal/ai"
	"github.com/garnizeh/outreach/internal/analytics"
	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/dispatch"
	"github.com/garnizeh/outreach/internal/engagement"
	"github.com/garnizeh/outreach/internal/followup"
	"github.com/garnizeh/outreach/internal/jobs"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
	"github.com/garnizeh/outreach/internal/scheduler"
	"github.com/garnizeh/outreach/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	ollama.SetLogger(logger)

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting outreach server", slog.String("version", version), slog.String("build_time", buildTime))
	ctx := context.Background()

	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("close db", slog.Any("err", err))
		}
	}()
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
			return err
		}
	}

	repo := sqlite.New(conn, logger)
	repo.SetJobLease(cfg.Jobs.Lease)

	cadences, err := followup.NewCadences(repo, cadenceSteps(cfg.FollowUp.Steps), cfg.FollowUp.MaxSteps)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg.Delivery, logger)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(repo, cadences, sender, dispatch.Config{
		BatchSize:       cfg.Dispatch.BatchSize,
		Workers:         cfg.Dispatch.Workers,
		ClaimTTL:        cfg.Dispatch.ClaimTTL,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
		PhoneRegion:     cfg.Delivery.PhoneRegion,
	}, logger)
	sequencer := followup.NewSequencer(repo, cadences, sender, followup.Config{
		BatchSize:       cfg.FollowUp.BatchSize,
		Workers:         cfg.FollowUp.Workers,
		ClaimTTL:        cfg.FollowUp.ClaimTTL,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
		PhoneRegion:     cfg.Delivery.PhoneRegion,
	}, logger)
	manager := outreach.NewManager(repo, dispatcher, logger, outreach.WithPhoneRegion(cfg.Delivery.PhoneRegion))

	pool := jobs.NewWorkerPool(repo, nil, logger, cfg.Jobs.Workers)
	pool.SetPollInterval(cfg.Jobs.PollInterval)

	scorer := engagement.NewScorer(repo, logger)
	pool.Register(engagement.RecomputeJobType, jobs.PayloadHandler(scorer.HandleRecompute))
	ingestor := engagement.NewIngestor(repo, scorer, pool, logger)

	handlers := api.Handlers{
		System:     api.NewSystemHandler(conn.GetConn()),
		Leads:      api.NewLeadsHandler(manager, nil),
		Engagement: api.NewEngagementHandler(ingestor, analytics.NewAggregator(repo), cadences),
	}

	// Drafting stays off when the prompt template cannot be loaded; the rest
	// of the service does not depend on it.
	client, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		return err
	}
	defer client.Close()
	engine, err := ai.NewEngine(ctx, client, cfg.EngineConfig, repo, repo, logger)
	if err != nil {
		logger.Warn("ai drafting disabled", slog.Any("err", err))
		handlers.Prompts = api.NewPromptsHandler(repo, repo, nil)
	} else {
		drafter := ai.NewDrafter(engine, manager, logger)
		pool.Register(ai.DraftJobType, jobs.PayloadHandler(drafter.HandleGenerate))
		handlers.Leads = api.NewLeadsHandler(manager, pool)
		handlers.Prompts = api.NewPromptsHandler(repo, repo, engine)

		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ok, err := client.HasModel(hctx, cfg.EngineConfig.Model)
		cancel()
		switch {
		case err != nil:
			logger.Warn("ollama not reachable yet; draft jobs will retry", slog.Any("err", err))
		case !ok:
			logger.Warn("drafting model is not installed in ollama", slog.String("model", cfg.EngineConfig.Model))
		}
	}

	sched := scheduler.New(cfg.Dispatch.ClaimTTL, logger)
	if err := sched.Add("dispatch", cfg.Scheduler.DispatchEvery, scheduler.Ticking(logger, "dispatch", dispatcher.Tick)); err != nil {
		return err
	}
	if err := sched.Add("followup", cfg.Scheduler.FollowUpEvery, scheduler.Ticking(logger, "followup", sequencer.Tick)); err != nil {
		return err
	}

	pool.Start(ctx)
	sched.Start()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.SetupRoutes(cfg.JWTSecret, version, buildTime, handlers),
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout + cfg.Dispatch.DeliveryTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-quit:
		logger.Info("shutting down")
	case runErr = <-serveErr:
	}

	// Give outstanding requests and ticks 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler stop", slog.Any("err", err))
	}
	pool.Stop()

	return runErr
}

// newSender builds the delivery chain: the configured email provider, the
// optional SMS webhook, and a rate limit in front of both.
func newSender(cfg config.DeliveryConfig, logger *slog.Logger) (delivery.Sender, error) {
	var email delivery.Sender
	switch cfg.Email {
	case "smtp":
		email = delivery.NewSMTPSender(delivery.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
	case "sendgrid":
		email = delivery.NewSendGridSender(delivery.SendGridConfig{
			APIKey:    cfg.SendGrid.APIKey,
			FromEmail: cfg.SendGrid.FromEmail,
			FromName:  cfg.SendGrid.FromName,
		}, logger)
	case "log":
		email = delivery.NewLogSender(logger)
	default:
		return nil, errors.New("unknown email provider " + cfg.Email)
	}

	senders := map[delivery.Channel]delivery.Sender{delivery.ChannelEmail: email}
	if cfg.SMSWebhook.URL != "" {
		senders[delivery.ChannelSMS] = delivery.NewWebhookSender(cfg.SMSWebhook.URL, cfg.SMSWebhook.Token, cfg.SMSWebhook.Timeout)
	}
	return delivery.NewLimited(delivery.NewRouter(senders), cfg.RatePerSec, cfg.Burst), nil
}

func cadenceSteps(in []config.StepConfig) []models.CadenceStep {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.CadenceStep, 0, len(in))
	for i, s := range in {
		out = append(out, models.CadenceStep{Order: i + 1, Delay: s.Delay, Subject: s.Subject, Body: s.Body})
	}
	return out
}
