// Command docserver runs the documentation search service: a health HTTP
// surface and an MCP protocol surface over both packages tracked in
// Postgres/pgvector.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"docsearch/internal/config"
	"docsearch/internal/crawler"
	"docsearch/internal/embedding"
	"docsearch/internal/ingest"
	"docsearch/internal/observability"
	"docsearch/internal/service"
	"docsearch/internal/store"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	readiness := &service.Readiness{}
	healthMux := service.NewHealthMux(readiness)
	healthAddr := fmt.Sprintf(":%d", cfg.HealthPort)
	go func() {
		log.Info().Str("addr", healthAddr).Msg("docserver: health surface listening")
		if err := http.ListenAndServe(healthAddr, healthMux); err != nil {
			log.Fatal().Err(err).Msg("docserver: health server failed")
		}
	}()

	ctx := context.Background()

	st, err := store.Open(ctx, cfg.DatabaseURL, embeddingDimension(cfg), store.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("docserver: failed to connect to store")
	}
	defer st.Close()
	readiness.SetDatabaseConnected(true)

	configs, err := st.ListConfigs(ctx, true)
	if err != nil {
		log.Fatal().Err(err).Msg("docserver: failed to list package configs")
	}
	available, err := st.ListPackagesWithEmbeddings(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("docserver: failed to list packages with embeddings")
	}

	var missing []store.PackageConfig
	availableSet := make(map[string]struct{}, len(available))
	for _, name := range available {
		availableSet[name] = struct{}{}
	}
	for _, pc := range configs {
		if _, ok := availableSet[pc.Name]; !ok {
			missing = append(missing, pc)
		}
	}

	if err := installEmbeddingProvider(cfg); err != nil {
		log.Fatal().Err(err).Msg("docserver: failed to install embedding provider")
	}
	readiness.SetEmbeddingInitialized(true)

	cr := crawler.New(cfg.DocsHostBaseURL)
	pipeline := ingest.New(st, cr, 4)
	availability := service.NewAvailability(available)

	handlers := &service.Handlers{
		Store:         st,
		Pipeline:      pipeline,
		Availability:  availability,
		MaxPagesAdmin: cfg.Ingestion.MaxPagesAdmin,
	}
	log.Info().
		Int("configured_packages", len(configs)).
		Int("available_packages", len(available)).
		Int("missing_packages", len(missing)).
		Msg("docserver: startup inventory")

	mcpServer := service.NewMCPServer(handlers)
	protocolMux := service.NewProtocolMux(mcpServer)
	protocolAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	go func() {
		log.Info().Str("addr", protocolAddr).Msg("docserver: protocol surface listening")
		if err := http.ListenAndServe(protocolAddr, protocolMux); err != nil {
			log.Fatal().Err(err).Msg("docserver: protocol server failed")
		}
	}()

	go autoPopulate(ctx, pipeline, availability, readiness, missing, cfg.Ingestion.MaxPagesAuto)

	select {}
}

func embeddingDimension(cfg config.Config) int {
	if cfg.EmbeddingProvider == config.ProviderVoyage {
		return 1024
	}
	return 1536
}

func installEmbeddingProvider(cfg config.Config) error {
	switch cfg.EmbeddingProvider {
	case config.ProviderVoyage:
		return embedding.Install(embedding.NewVoyage(cfg.VoyageAPIKey, cfg.EmbeddingModel, embeddingDimension(cfg)))
	default:
		return embedding.Install(embedding.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.OpenAIAPIBase, embeddingDimension(cfg)))
	}
}

// autoPopulate ingests every package missing embeddings at startup,
// pacing requests to the documentation host with a fixed delay between
// packages. Readiness's auto_population_complete flag reflects that the
// sweep was spawned, not that it finished.
func autoPopulate(ctx context.Context, pipeline *ingest.Pipeline, availability *service.Availability, readiness *service.Readiness, missing []store.PackageConfig, maxPages int) {
	readiness.SetAutoPopulationComplete(true)
	for _, cfg := range missing {
		result, err := pipeline.Ingest(ctx, cfg, maxPages)
		if err != nil {
			log.Warn().Err(err).Str("package", cfg.Name).Msg("docserver: auto-population failed for package")
			continue
		}
		availability.Add(cfg.Name)
		log.Info().Str("package", cfg.Name).Int("documents", result.DocumentsLoaded).Msg("docserver: auto-population ingested package")
		time.Sleep(500 * time.Millisecond)
	}
}
