// Package ingest implements the ingestion pipeline: the orchestration of
// crawl → embed → persist for a single package, recorded as a job.
package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"docsearch/internal/apperr"
	"docsearch/internal/crawler"
	"docsearch/internal/embedding"
	"docsearch/internal/store"

	"github.com/rs/zerolog/log"
)

// IngestResult summarises a single ingestion run for logging and for the
// caller's response payload.
type IngestResult struct {
	DocumentsLoaded     int
	EmbeddingsGenerated int
	TotalTokens         int
	Version             string
	Timings             map[string]time.Duration
}

// Pipeline drives C1 (crawl), C2 (embed), and C3 (persist) for one package
// configuration at a time, bounding concurrent HTML-parsing work with a
// semaphore since goquery documents are not safe to touch concurrently
// mid-parse.
type Pipeline struct {
	store   store.Store
	crawler *crawler.Crawler
	gate    *semaphore.Weighted
}

// New constructs a Pipeline. concurrency bounds the number of packages that
// may be crawled/parsed at once.
func New(st store.Store, cr *crawler.Crawler, concurrency int64) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{store: st, crawler: cr, gate: semaphore.NewWeighted(concurrency)}
}

// Ingest runs the full crawl → embed → persist sequence for one package
// configuration, recording progress against its job row.
func (p *Pipeline) Ingest(ctx context.Context, cfg store.PackageConfig, maxPages int) (IngestResult, error) {
	timings := make(map[string]time.Duration)
	result := IngestResult{Timings: timings}

	jobID, err := p.store.CreateJob(ctx, cfg.ID)
	if err != nil {
		return result, apperr.New(apperr.StoreErr, "ingest.Ingest.createJob", err)
	}
	if err := p.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: store.JobRunning}); err != nil {
		return result, apperr.New(apperr.StoreErr, "ingest.Ingest.markRunning", err)
	}

	fail := func(stage string, cause error) (IngestResult, error) {
		log.Error().Err(cause).Str("package", cfg.Name).Str("stage", stage).Msg("ingest: pipeline failed")
		_ = p.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: store.JobFailed, ErrorMessage: cause.Error()})
		return result, cause
	}

	if err := p.gate.Acquire(ctx, 1); err != nil {
		return fail("acquire", apperr.New(apperr.Internal, "ingest.Ingest.acquire", err))
	}

	crawlStart := time.Now()
	crawlResult, err := p.crawler.Crawl(ctx, cfg.Name, cfg.VersionSpec, cfg.Features, maxPages)
	p.gate.Release(1)
	timings["crawl"] = time.Since(crawlStart)
	if err != nil {
		return fail("crawl", apperr.New(apperr.NetworkErr, "ingest.Ingest.crawl", err))
	}
	result.Version = crawlResult.ResolvedVersion
	result.DocumentsLoaded = len(crawlResult.Documents)

	if len(crawlResult.Documents) == 0 {
		zero := 0
		_ = p.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: store.JobCompleted, DocsPopulated: &zero})
		return result, apperr.New(apperr.NotFound, "ingest.Ingest.crawl", fmt.Errorf("no documents found for package %q", cfg.Name))
	}

	provider, err := embedding.Get()
	if err != nil {
		return fail("embed", err)
	}

	docs := make([]embedding.Document, len(crawlResult.Documents))
	for i, d := range crawlResult.Documents {
		docs[i] = embedding.Document{Path: d.Path, Content: d.Content}
	}

	embedStart := time.Now()
	embedded, tokensUsed, err := provider.EmbedDocuments(ctx, docs)
	timings["embed"] = time.Since(embedStart)
	if err != nil {
		return fail("embed", apperr.New(apperr.Internal, "ingest.Ingest.embed", err))
	}
	result.TotalTokens = tokensUsed
	result.EmbeddingsGenerated = len(embedded)

	rows := make([]store.EmbeddingRow, len(embedded))
	for i, e := range embedded {
		rows[i] = store.EmbeddingRow{
			Path:       e.Path,
			Content:    e.Content,
			Vector:     e.Vector,
			TokenCount: embedding.CountTokens(e.Content),
		}
	}

	persistStart := time.Now()
	packageID, err := p.store.UpsertPackage(ctx, cfg.Name, crawlResult.ResolvedVersion)
	if err != nil {
		return fail("persist", apperr.New(apperr.StoreErr, "ingest.Ingest.upsertPackage", err))
	}
	if err := p.store.InsertEmbeddingsBatch(ctx, packageID, cfg.Name, rows); err != nil {
		return fail("persist", apperr.New(apperr.StoreErr, "ingest.Ingest.insertBatch", err))
	}
	timings["persist"] = time.Since(persistStart)

	now := time.Now()
	cfgUpdate := cfg
	cfgUpdate.CurrentVersion = crawlResult.ResolvedVersion
	cfgUpdate.LastPopulated = &now
	cfgUpdate.LastChecked = &now
	if _, err := p.store.UpsertConfig(ctx, cfgUpdate); err != nil {
		log.Warn().Err(err).Str("package", cfg.Name).Msg("ingest: failed to record config progress, continuing")
	}

	docsPopulated := len(rows)
	if err := p.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: store.JobCompleted, DocsPopulated: &docsPopulated}); err != nil {
		log.Warn().Err(err).Str("package", cfg.Name).Msg("ingest: failed to mark job completed")
	}

	log.Info().
		Str("package", cfg.Name).
		Int("documents", result.DocumentsLoaded).
		Int("embeddings", result.EmbeddingsGenerated).
		Int("tokens", result.TotalTokens).
		Dur("crawl_ms", timings["crawl"]).
		Dur("embed_ms", timings["embed"]).
		Dur("persist_ms", timings["persist"]).
		Msg("ingest: pipeline completed")

	return result, nil
}
