package main

import (
	"context"
	"flag"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/afp-labs/mailgrant/internal/config"
	migrations "github.com/afp-labs/mailgrant/migrations/postgres"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to YAML config")
		envFile    = flag.String("env-file", ".env", "path to .env file (optional)")
	)
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}

	// Positional args: [action] [steps]
	action := "up"
	steps := 0
	args := flag.Args()
	if len(args) >= 1 && args[0] != "" {
		action = strings.ToLower(args[0])
	}
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
			steps = n
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	var suffix string
	switch action {
	case "up":
		suffix = "_up.sql"
	case "down":
		suffix = "_down.sql"
	default:
		log.Fatalf("unknown action %q. Use: up | down [steps]", action)
	}

	files, err := listEmbedded(suffix)
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	if len(files) == 0 {
		log.Printf("No *%s migrations found. Nothing to do.", suffix)
		return
	}

	sort.Strings(files)
	if action == "down" {
		// Downs run newest first.
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	log.Printf("Applying %d %s migration(s)...", len(files), action)
	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		log.Printf("  applied %s", f)
	}
	log.Printf("Migrations (%s) completed.", action)
}

func listEmbedded(suffix string) ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
