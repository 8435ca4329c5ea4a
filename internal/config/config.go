// Package config loads runtime configuration for the documentation search
// service from environment variables, mirroring the .env-overload pattern
// used across the rest of this codebase's daemons.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EmbeddingProvider names one of the supported embedding backends.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderVoyage EmbeddingProvider = "voyage"
)

// IngestionConfig carries the two page-budget defaults named by the design
// notes; both remain overridable so operators are not locked to either.
type IngestionConfig struct {
	MaxPagesAdmin int // page budget for admin-triggered add_package calls
	MaxPagesAuto  int // page budget for bulk auto-population at startup
}

// Config is the fully resolved process configuration.
type Config struct {
	Host string
	Port int

	HealthPort int

	DatabaseURL string

	DocsHostBaseURL string

	EmbeddingProvider EmbeddingProvider
	EmbeddingModel    string
	OpenAIAPIKey      string
	OpenAIAPIBase     string
	VoyageAPIKey      string

	LogPath  string
	LogLevel string

	Ingestion IngestionConfig
}

// Load reads configuration from the environment (after applying a local
// .env file, if present). It never fails on a missing optional variable;
// it only returns an error for a value that cannot be parsed (e.g. a
// non-numeric port).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		Host:              firstNonEmpty(os.Getenv("HOST"), "0.0.0.0"),
		HealthPort:        8080,
		DatabaseURL:       strings.TrimSpace(os.Getenv("MCPDOCS_DATABASE_URL")),
		DocsHostBaseURL:   firstNonEmpty(strings.TrimSpace(os.Getenv("DOCS_HOST_BASE_URL")), "https://docs.rs"),
		EmbeddingProvider: EmbeddingProvider(firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PROVIDER")), string(ProviderOpenAI))),
		EmbeddingModel:    strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIAPIBase:     strings.TrimSpace(os.Getenv("OPENAI_API_BASE")),
		VoyageAPIKey:      strings.TrimSpace(os.Getenv("VOYAGE_API_KEY")),
		LogPath:           strings.TrimSpace(os.Getenv("LOG_PATH")),
		LogLevel:          firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), "info"),
		Ingestion: IngestionConfig{
			MaxPagesAdmin: 10000,
			MaxPagesAuto:  50,
		},
	}

	cfg.Port = 3000
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = n
	}
	if v := strings.TrimSpace(os.Getenv("HEALTH_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.HealthPort = n
	}
	if v := strings.TrimSpace(os.Getenv("MAX_PAGES_ADMIN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingestion.MaxPagesAdmin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_PAGES_AUTO")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingestion.MaxPagesAuto = n
		}
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
