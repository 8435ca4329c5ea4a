package store

import "context"

// Store is the persistence contract C4 and C5 depend on. The pgx-backed
// implementation and the in-memory fake used by tests both satisfy it, so
// the ingestion pipeline and service orchestrator never depend on a
// concrete backend.
type Store interface {
	UpsertPackage(ctx context.Context, name, version string) (int64, error)
	HasEmbeddings(ctx context.Context, name string) (bool, error)
	ListPackagesWithEmbeddings(ctx context.Context) ([]string, error)
	InsertEmbeddingsBatch(ctx context.Context, packageID int64, name string, rows []EmbeddingRow) error
	SearchSimilar(ctx context.Context, name string, queryVector []float32, k int) ([]SearchResult, error)
	CountDocuments(ctx context.Context, name string) (int, error)
	DeleteEmbeddings(ctx context.Context, name string) error

	ListConfigs(ctx context.Context, enabledOnly bool) ([]PackageConfig, error)
	GetConfig(ctx context.Context, name, versionSpec string) (PackageConfig, bool, error)
	UpsertConfig(ctx context.Context, cfg PackageConfig) (PackageConfig, error)
	DeleteConfig(ctx context.Context, name, versionSpec string) (bool, error)
	ConfigsNeedingUpdate(ctx context.Context) ([]PackageConfig, error)

	CreateJob(ctx context.Context, configID int64) (int64, error)
	UpdateJob(ctx context.Context, id int64, update JobUpdate) error

	AggregateStats(ctx context.Context) ([]Package, error)

	Close()
}
