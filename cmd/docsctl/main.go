// Command docsctl is the operator CLI for the documentation search
// service: listing tracked packages and sweeping configs that need a
// fresh ingest, supplementing the operations the service's MCP tools
// don't expose directly to a human.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"docsearch/internal/config"
	"docsearch/internal/crawler"
	"docsearch/internal/embedding"
	"docsearch/internal/ingest"
	"docsearch/internal/observability"
	"docsearch/internal/store"
)

// seedFile is the shape of the YAML file --seed reads: a flat list of
// packages to declare as tracked configs, the bulk-import path this
// admin tool offers in place of the one-off JSON migration utility the
// distillation dropped.
type seedFile struct {
	Packages []seedPackage `yaml:"packages"`
}

type seedPackage struct {
	Name        string   `yaml:"name"`
	VersionSpec string   `yaml:"version_spec"`
	Features    []string `yaml:"features,omitempty"`
	Enabled     *bool    `yaml:"enabled,omitempty"`
}

func main() {
	list := flag.Bool("list", false, "list tracked packages and their stats")
	populateAll := flag.Bool("populate-all", false, "ingest every config that needs an update")
	seedPath := flag.String("seed", "", "path to a YAML file of packages to register as configs")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx := context.Background()
	dimension := 1536
	if cfg.EmbeddingProvider == config.ProviderVoyage {
		dimension = 1024
	}
	st, err := store.Open(ctx, cfg.DatabaseURL, dimension, store.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("docsctl: failed to connect to store")
	}
	defer st.Close()

	switch {
	case *list:
		runList(ctx, st)
	case *populateAll:
		runPopulateAll(ctx, cfg, st)
	case *seedPath != "":
		runSeed(ctx, st, *seedPath)
	default:
		fmt.Println("usage: docsctl [--list] [--populate-all] [--seed <file.yaml>]")
	}
}

// runSeed registers every package named in a YAML seed file as a
// package config, without triggering ingestion; a subsequent
// --populate-all sweep (or an add_package tool call) performs the
// actual crawl/embed/persist work.
func runSeed(ctx context.Context, st *store.Postgres, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("docsctl: failed to read seed file")
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("docsctl: failed to parse seed file")
	}

	for _, pkg := range seed.Packages {
		enabled := true
		if pkg.Enabled != nil {
			enabled = *pkg.Enabled
		}
		versionSpec := pkg.VersionSpec
		if versionSpec == "" {
			versionSpec = "latest"
		}
		if _, err := st.UpsertConfig(ctx, store.PackageConfig{
			Name:        pkg.Name,
			VersionSpec: versionSpec,
			Features:    pkg.Features,
			Enabled:     enabled,
		}); err != nil {
			fmt.Printf("  %s@%s: failed to register (%v)\n", pkg.Name, versionSpec, err)
			continue
		}
		fmt.Printf("  %s@%s: registered\n", pkg.Name, versionSpec)
	}
}

func runList(ctx context.Context, st *store.Postgres) {
	stats, err := st.AggregateStats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("docsctl: failed to list packages")
	}
	if len(stats) == 0 {
		fmt.Println("no packages tracked")
		return
	}
	fmt.Printf("%-30s %-15s %10s %12s\n", "PACKAGE", "VERSION", "DOCS", "TOKENS")
	for _, p := range stats {
		fmt.Printf("%-30s %-15s %10d %12d\n", p.Name, p.Version, p.TotalDocs, p.TotalTokens)
	}
}

// runPopulateAll ingests every config ConfigsNeedingUpdate reports,
// sequentially, matching the reporting style of the admin tooling this
// was supplemented from but without its parallel fan-out: the ingestion
// pipeline's own worker pool already bounds concurrency.
func runPopulateAll(ctx context.Context, cfg config.Config, st *store.Postgres) {
	if err := embedding.Install(embedding.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIAPIBase, 1536)); err != nil {
		log.Fatal().Err(err).Msg("docsctl: failed to install embedding provider")
	}

	cr := crawler.New(cfg.DocsHostBaseURL)
	pipeline := ingest.New(st, cr, 4)

	needing, err := st.ConfigsNeedingUpdate(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("docsctl: failed to list configs needing update")
	}
	if len(needing) == 0 {
		fmt.Println("all packages up to date")
		return
	}

	succeeded, failed := 0, 0
	for _, pc := range needing {
		fmt.Printf("ingesting %s@%s...\n", pc.Name, pc.VersionSpec)
		result, err := pipeline.Ingest(ctx, pc, cfg.Ingestion.MaxPagesAdmin)
		if err != nil {
			fmt.Printf("  failed: %v\n", err)
			failed++
			continue
		}
		fmt.Printf("  ok: %d documents, %d tokens\n", result.DocumentsLoaded, result.TotalTokens)
		succeeded++
	}
	fmt.Printf("\n%d succeeded, %d failed\n", succeeded, failed)
}
