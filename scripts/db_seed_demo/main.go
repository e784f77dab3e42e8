package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	dbfs "github.com/garnizeh/outreach/db"
	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/internal/demo"
	"github.com/garnizeh/outreach/internal/repository/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	userID := flag.Int64("user", 1, "User id that owns the demo leads")
	count := flag.Int("count", 25, "Number of leads")
	seed := flag.Int64("seed", 42, "Random seed")
	flag.Parse()
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}

	n, err := demo.Seed(ctx, sqlite.New(database, logger), *userID, *count, *seed, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d demo leads for user %d.\n", n, *userID)
}
