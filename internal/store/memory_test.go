package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertPackageIsIdempotentByName(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, err := m.UpsertPackage(ctx, "tokio", "1.0.0")
	require.NoError(t, err)
	id2, err := m.UpsertPackage(ctx, "tokio", "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	stats, err := m.AggregateStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "1.1.0", stats[0].Version)
}

func TestMemory_InsertEmbeddingsBatchUpsertsByPath(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.UpsertPackage(ctx, "serde", "")
	require.NoError(t, err)
	rows := []EmbeddingRow{
		{Path: "a.html", Content: "first", Vector: []float32{1, 0}, TokenCount: 3},
		{Path: "b.html", Content: "second", Vector: []float32{0, 1}, TokenCount: 5},
	}
	require.NoError(t, m.InsertEmbeddingsBatch(ctx, id, "serde", rows))

	count, err := m.CountDocuments(ctx, "serde")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-inserting the same path updates content rather than duplicating.
	require.NoError(t, m.InsertEmbeddingsBatch(ctx, id, "serde", []EmbeddingRow{
		{Path: "a.html", Content: "updated", Vector: []float32{1, 0}, TokenCount: 4},
	}))
	count, err = m.CountDocuments(ctx, "serde")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "upsert should not duplicate rows")

	stats, err := m.AggregateStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 9, stats[0].TotalTokens)
}

func TestMemory_SearchSimilarRanksByCosine(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.UpsertPackage(ctx, "axum", "")
	require.NoError(t, err)
	require.NoError(t, m.InsertEmbeddingsBatch(ctx, id, "axum", []EmbeddingRow{
		{Path: "close.html", Content: "close", Vector: []float32{1, 0.01}},
		{Path: "far.html", Content: "far", Vector: []float32{0, 1}},
	}))

	results, err := m.SearchSimilar(ctx, "axum", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close.html", results[0].Path)
}

func TestMemory_ConfigsNeedingUpdate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	cfg, err := m.UpsertConfig(ctx, PackageConfig{Name: "tokio", VersionSpec: "latest", Enabled: true})
	require.NoError(t, err)

	needing, err := m.ConfigsNeedingUpdate(ctx)
	require.NoError(t, err)
	require.Len(t, needing, 1)
	assert.Equal(t, cfg.ID, needing[0].ID)

	populated := now()
	cfg.LastPopulated = &populated
	cfg.LastChecked = &populated
	cfg.CurrentVersion = "1.40.0"
	_, err = m.UpsertConfig(ctx, cfg)
	require.NoError(t, err)
	_, err = m.UpsertPackage(ctx, "tokio", "1.40.0")
	require.NoError(t, err)

	needing, err = m.ConfigsNeedingUpdate(ctx)
	require.NoError(t, err)
	assert.Empty(t, needing, "expected no configs needing update after populating")
}

func TestMemory_JobLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.CreateJob(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, m.UpdateJob(ctx, id, JobUpdate{Status: JobRunning}))
	docs := 42
	require.NoError(t, m.UpdateJob(ctx, id, JobUpdate{Status: JobCompleted, DocsPopulated: &docs}))

	job := m.jobs[id]
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, 42, job.DocsPopulated)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}
