// Command draft-preview asks the configured Ollama model for a draft without
// touching any lead. Useful when iterating on the prompt template.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/internal/ai"
	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/demo"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
	"github.com/garnizeh/outreach/pkg/ollama"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	name := flag.String("name", "", "Lead name (random when empty)")
	email := flag.String("email", "", "Lead email (random when empty)")
	instructions := flag.String("instructions", "", "Extra instructions for the model")
	seed := flag.Int64("seed", 1, "Seed for the random lead")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx := context.Background()
	conn, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	repo := sqlite.New(conn, nil)

	client, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		log.Fatalf("ollama client: %v", err)
	}
	defer client.Close()

	engine, err := ai.NewEngine(ctx, client, cfg.EngineConfig, repo, repo, nil)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	lead := demo.Leads(1, *seed)[0]
	if *name != "" {
		lead.Name = *name
	}
	if *email != "" {
		lead.Email = *email
	}

	draft, err := engine.GenerateDraft(ctx, &lead, *instructions)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(draft); err != nil {
		log.Fatal(err)
	}
}
