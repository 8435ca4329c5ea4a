// Package store is the durable persistence and vector-search layer: the
// four tables named by the data model (packages, package configs,
// embeddings, ingestion jobs), plus the cosine-similarity search that
// backs query_docs.
package store

import "time"

// Package is a tracked documentation unit.
type Package struct {
	ID          int64
	Name        string
	Version     string
	LastUpdated time.Time
	TotalDocs   int
	TotalTokens int
}

// PackageConfig is a declarative record of an operator's intent to track
// a package.
type PackageConfig struct {
	ID             int64
	Name           string
	VersionSpec    string
	CurrentVersion string
	Features       []string
	ExpectedDocs   int
	Enabled        bool
	LastChecked    *time.Time
	LastPopulated  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EmbeddingRow is one vector-bearing chunk ready for a batch insert.
type EmbeddingRow struct {
	Path       string
	Content    string
	Vector     []float32
	TokenCount int
}

// SearchResult is a single nearest-neighbour hit.
type SearchResult struct {
	Path       string
	Content    string
	Similarity float64
}

// JobStatus is the lifecycle state of an IngestionJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IngestionJob is an audit record of one ingestion attempt.
type IngestionJob struct {
	ID              int64
	PackageConfigID int64
	Status          JobStatus
	ErrorMessage    string
	DocsPopulated   int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// JobUpdate carries the fields UpdateJob may change; zero-value fields are
// left untouched except Status, which is always applied.
type JobUpdate struct {
	Status        JobStatus
	ErrorMessage  string
	DocsPopulated *int
}
