package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/garnizeh/outreach/internal/config"
	"github.com/garnizeh/outreach/internal/db"
)

// Restore copies a backup over the configured database. Stop the server first.
func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	from := flag.String("from", "", "Backup file to restore")
	flag.Parse()
	_ = godotenv.Load()

	if *from == "" {
		fmt.Fprintln(os.Stderr, "Restore error: -from is required")
		os.Exit(2)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// refuse to restore something that is not a readable database
	ctx := context.Background()
	check, err := db.New(ctx, *from, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}
	var result string
	if err := check.QueryRow(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil || result != "ok" {
		_ = check.Close()
		fmt.Fprintf(os.Stderr, "Restore error: backup failed integrity check (%s %v)\n", result, err)
		os.Exit(1)
	}
	_ = check.Close()

	if err := copyFile(*from, cfg.DatabasePath); err != nil {
		fmt.Fprintf(os.Stderr, "Restore error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Database %s restored from %s.\n", cfg.DatabasePath, *from)
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	tmp := dst + ".restore"
	dstFile, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	if err := dstFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
