package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/storefront-api/internal/catalog"
	"github.com/noah-isme/storefront-api/internal/obs"
)

// catalog_seed loads a JSON catalog file into the SQLite catalog store.
// Exit code 0 = ok, 1 = invalid catalog, 2 = other error.
func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	from := flag.String("from", envOrDefault("CATALOG_PATH", "data/catalog.json"), "catalog JSON file")
	dbPath := flag.String("db", envOrDefault("CATALOG_DB_PATH", "data/catalog.db"), "SQLite catalog database")
	dryRun := flag.Bool("dry-run", false, "validate only")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	items, err := catalog.FileSource{Path: *from}.LoadItems(ctx)
	if err != nil {
		logger.Error().Err(err).Str("path", *from).Msg("read catalog")
		os.Exit(2)
	}
	ix, err := catalog.NewIndex(items)
	if err != nil {
		logger.Error().Err(err).Str("path", *from).Msg("invalid catalog")
		os.Exit(1)
	}
	if *dryRun {
		logger.Info().Int("items", ix.Len()).Msg("catalog valid")
		return
	}

	store, err := catalog.OpenStore(*dbPath)
	if err != nil {
		logger.Error().Err(err).Str("db", *dbPath).Msg("open catalog store")
		os.Exit(2)
	}
	defer store.Close()

	if err := store.ReplaceAll(ctx, items); err != nil {
		logger.Error().Err(err).Msg("write catalog store")
		os.Exit(2)
	}
	syncedAt, count, err := store.LastSync(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("read sync marker")
		os.Exit(2)
	}
	logger.Info().Int("items", count).Time("synced_at", syncedAt).Str("db", *dbPath).Msg("catalog seeded")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
